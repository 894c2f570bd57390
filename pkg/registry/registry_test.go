package registry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisauth/aegis/pkg/registry"
	"github.com/aegisauth/aegis/pkg/template"
)

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu        sync.Mutex
	resources []string
	actions   []string
}

func (n *recordingNotifier) ResourceRegistered(_ context.Context, def registry.ResourceDefinition) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resources = append(n.resources, def.Name)
}

func (n *recordingNotifier) ActionRegistered(_ context.Context, resource string, def registry.ActionDefinition) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.actions = append(n.actions, resource+"."+def.Name)
}

func TestRegisterResource_Duplicate(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ctx := context.Background()

	first := registry.ResourceDefinition{
		Name: "task",
		Type: "rest",
		Path: "/tasks/{task_id}",
	}
	_, err := reg.RegisterResource(ctx, first)
	require.NoError(t, err)

	_, err = reg.RegisterResource(ctx, registry.ResourceDefinition{
		Name: "task",
		Type: "rest",
		Path: "/other/{id}",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrDuplicateResource)

	// The first registration must remain intact.
	match, err := reg.ResolveByPath("/tasks/42")
	require.NoError(t, err)
	assert.Equal(t, "task", match.Resource)
	assert.Equal(t, map[string]string{"task_id": "42"}, match.Variables)
}

func TestRegisterResource_InvalidTemplateLeavesNoState(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ctx := context.Background()

	_, err := reg.RegisterResource(ctx, registry.ResourceDefinition{
		Name: "task",
		Type: "rest",
		Path: "/tasks/{task_id}",
		Actions: []registry.ActionDefinition{
			{Name: "retrieve", Path: "/tasks/{broken"},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, template.ErrInvalidTemplate)

	// The resource must not have been registered at all.
	assert.False(t, reg.HasResource("task"))
	_, err = reg.ResolveByPath("/tasks/42")
	assert.ErrorIs(t, err, registry.ErrNoMatch)
}

func TestRegisterAction(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ctx := context.Background()

	stub, err := reg.RegisterResource(ctx, registry.ResourceDefinition{
		Name: "task",
		Type: "rest",
		Path: "/tasks/{task_id}",
	})
	require.NoError(t, err)
	require.Equal(t, "task", stub.Name())

	require.NoError(t, stub.Action(ctx, registry.ActionDefinition{
		Name:       "retrieve",
		Attributes: map[string]string{"verb": "GET"},
	}))

	// Duplicate action on the same resource fails.
	err = reg.RegisterAction(ctx, "task", registry.ActionDefinition{Name: "retrieve"})
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrDuplicateAction)

	// Unknown resource fails.
	err = reg.RegisterAction(ctx, "board", registry.ActionDefinition{Name: "retrieve"})
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrUnknownResource)

	// The same action name is independent across resources.
	_, err = reg.RegisterResource(ctx, registry.ResourceDefinition{
		Name: "board",
		Type: "rest",
		Path: "/boards/{board_id}",
	})
	require.NoError(t, err)
	require.NoError(t, reg.RegisterAction(ctx, "board", registry.ActionDefinition{Name: "retrieve"}))
}

func TestResolveByName(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ctx := context.Background()

	_, err := reg.RegisterResource(ctx, registry.ResourceDefinition{
		Name: "task",
		Type: "rest",
		Path: "/tasks/{task_id}",
		Actions: []registry.ActionDefinition{
			{Name: "retrieve", Title: "Retrieve", Attributes: map[string]string{"verb": "GET"}},
		},
	})
	require.NoError(t, err)

	res, act, err := reg.ResolveByName("task", "retrieve")
	require.NoError(t, err)
	assert.Equal(t, "task", res.Name)
	assert.Equal(t, "retrieve", act.Name)
	assert.Equal(t, "GET", act.Attributes["verb"])

	_, _, err = reg.ResolveByName("task", "destroy")
	assert.ErrorIs(t, err, registry.ErrUnknownAction)

	_, _, err = reg.ResolveByName("board", "retrieve")
	assert.ErrorIs(t, err, registry.ErrUnknownResource)
}

func TestResolveByPath(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ctx := context.Background()

	_, err := reg.RegisterResource(ctx, registry.ResourceDefinition{
		Name: "task",
		Type: "rest",
		Path: "/api/v1/boards/{list_id}/tasks/{task_id}",
	})
	require.NoError(t, err)
	_, err = reg.RegisterResource(ctx, registry.ResourceDefinition{
		Name: "board",
		Type: "rest",
		Path: "/api/v1/boards/{board_id}",
	})
	require.NoError(t, err)

	match, err := reg.ResolveByPath("/api/v1/boards/2/tasks/3")
	require.NoError(t, err)
	assert.Equal(t, "task", match.Resource)
	assert.Equal(t, "", match.Action)
	assert.Equal(t, map[string]string{"list_id": "2", "task_id": "3"}, match.Variables)

	match, err = reg.ResolveByPath("/api/v1/boards/2")
	require.NoError(t, err)
	assert.Equal(t, "board", match.Resource)

	_, err = reg.ResolveByPath("/api/v2/unknown")
	assert.ErrorIs(t, err, registry.ErrNoMatch)
}

func TestResolveByPath_ActionLevelTemplate(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ctx := context.Background()

	_, err := reg.RegisterResource(ctx, registry.ResourceDefinition{
		Name: "task",
		Type: "rest",
		Actions: []registry.ActionDefinition{
			{Name: "archive", Path: "/tasks/{task_id}/archive"},
		},
	})
	require.NoError(t, err)

	match, err := reg.ResolveByPath("/tasks/9/archive")
	require.NoError(t, err)
	assert.Equal(t, "task", match.Resource)
	assert.Equal(t, "archive", match.Action)
	assert.Equal(t, map[string]string{"task_id": "9"}, match.Variables)
}

// TestResolveByPath_DeclarationOrderTieBreak registers two templates that both
// structurally match the same path and checks the earlier registration wins,
// deterministically, across repeated calls.
func TestResolveByPath_DeclarationOrderTieBreak(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ctx := context.Background()

	_, err := reg.RegisterResource(ctx, registry.ResourceDefinition{
		Name: "first",
		Type: "rest",
		Path: "/things/{id}",
	})
	require.NoError(t, err)
	_, err = reg.RegisterResource(ctx, registry.ResourceDefinition{
		Name: "second",
		Type: "rest",
		Path: "/things/{thing_id}",
	})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		match, err := reg.ResolveByPath("/things/7")
		require.NoError(t, err)
		assert.Equal(t, "first", match.Resource)
		assert.Equal(t, map[string]string{"id": "7"}, match.Variables)
	}
}

func TestNotifierReceivesMutations(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	reg := registry.New(registry.WithNotifier(notifier))
	ctx := context.Background()

	stub, err := reg.RegisterResource(ctx, registry.ResourceDefinition{
		Name: "task",
		Type: "rest",
		Path: "/tasks/{task_id}",
	})
	require.NoError(t, err)
	require.NoError(t, stub.Action(ctx, registry.ActionDefinition{Name: "retrieve"}))

	assert.Equal(t, []string{"task"}, notifier.resources)
	assert.Equal(t, []string{"task.retrieve"}, notifier.actions)
}

func TestResources_Snapshot(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ctx := context.Background()

	_, err := reg.RegisterResource(ctx, registry.ResourceDefinition{
		Name: "task",
		Type: "rest",
		Path: "/tasks/{task_id}",
		Actions: []registry.ActionDefinition{
			{Name: "retrieve"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, reg.RegisterAction(ctx, "task", registry.ActionDefinition{Name: "archive"}))

	resources := reg.Resources()
	require.Len(t, resources, 1)
	require.Len(t, resources[0].Actions, 2)
	assert.Equal(t, "retrieve", resources[0].Actions[0].Name)
	assert.Equal(t, "archive", resources[0].Actions[1].Name)
}

func TestConcurrentLookups(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ctx := context.Background()

	_, err := reg.RegisterResource(ctx, registry.ResourceDefinition{
		Name: "task",
		Type: "rest",
		Path: "/tasks/{task_id}",
		Actions: []registry.ActionDefinition{
			{Name: "retrieve"},
		},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, err := reg.ResolveByPath("/tasks/1"); err != nil {
					t.Error(err)
					return
				}
				if _, _, err := reg.ResolveByName("task", "retrieve"); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
