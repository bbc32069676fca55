package rbac

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
	_ "github.com/roadline-tms/roadline-tms/internal/testing/guard"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type auditRecord struct {
	userID  *int64
	action  string
	details map[string]any
}

type mockRepository struct {
	perms      map[int64]Permission
	permsByKey map[string]int64
	nextPermID int64

	roles      map[int64]Role
	nextRoleID int64

	rolePerms map[int64]map[int64]struct{}
	roleUsers map[int64]int

	audits []auditRecord

	txError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		perms:      make(map[int64]Permission),
		permsByKey: make(map[string]int64),
		nextPermID: 1,
		roles:      make(map[int64]Role),
		nextRoleID: 1,
		rolePerms:  make(map[int64]map[int64]struct{}),
		roleUsers:  make(map[int64]int),
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, m)
}

func (m *mockRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *mockRepository) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		r.Permissions = m.keysForRole(r.ID)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	p, ok := m.perms[id]
	if !ok {
		return Permission{}, notFound("permission", id)
	}
	return p, nil
}

func (m *mockRepository) CreatePermission(ctx context.Context, key, description string) (Permission, error) {
	if _, exists := m.permsByKey[key]; exists {
		return Permission{}, httpx.ErrDuplicate
	}
	p := Permission{ID: m.nextPermID, Key: key, Description: description}
	m.nextPermID++
	m.perms[p.ID] = p
	m.permsByKey[key] = p.ID
	return p, nil
}

func (m *mockRepository) UpdatePermission(ctx context.Context, id int64, key, description string) (Permission, error) {
	p, ok := m.perms[id]
	if !ok {
		return Permission{}, notFound("permission", id)
	}
	if other, exists := m.permsByKey[key]; exists && other != id {
		return Permission{}, httpx.ErrDuplicate
	}
	delete(m.permsByKey, p.Key)
	p.Key, p.Description = key, description
	m.perms[id] = p
	m.permsByKey[key] = id
	return p, nil
}

func (m *mockRepository) CountPermissionRefs(ctx context.Context, permissionID int64) (int, error) {
	count := 0
	for _, bound := range m.rolePerms {
		if _, ok := bound[permissionID]; ok {
			count++
		}
	}
	return count, nil
}

func (m *mockRepository) DeletePermission(ctx context.Context, id int64) error {
	p, ok := m.perms[id]
	if !ok {
		return notFound("permission", id)
	}
	delete(m.perms, id)
	delete(m.permsByKey, p.Key)
	return nil
}

func (m *mockRepository) EnsurePermissions(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if _, exists := m.permsByKey[key]; exists {
			continue
		}
		if _, err := m.CreatePermission(ctx, key, ""); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockRepository) PermissionsByKeys(ctx context.Context, keys []string) ([]Permission, error) {
	var out []Permission
	for _, key := range keys {
		if id, ok := m.permsByKey[key]; ok {
			out = append(out, m.perms[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *mockRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return Role{}, notFound("role", id)
	}
	r.Permissions = m.keysForRole(id)
	return r, nil
}

func (m *mockRepository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	r := Role{ID: m.nextRoleID, Name: name, Description: description, Permissions: []string{}}
	m.nextRoleID++
	m.roles[r.ID] = r
	m.rolePerms[r.ID] = make(map[int64]struct{})
	return r, nil
}

func (m *mockRepository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return Role{}, notFound("role", id)
	}
	r.Name, r.Description = name, description
	m.roles[id] = r
	return r, nil
}

func (m *mockRepository) CountRoleUsers(ctx context.Context, roleID int64) (int, error) {
	return m.roleUsers[roleID], nil
}

func (m *mockRepository) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := m.roles[id]; !ok {
		return notFound("role", id)
	}
	delete(m.roles, id)
	delete(m.rolePerms, id)
	return nil
}

func (m *mockRepository) ClearRolePermissions(ctx context.Context, roleID int64) error {
	m.rolePerms[roleID] = make(map[int64]struct{})
	return nil
}

func (m *mockRepository) AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	bound := m.rolePerms[roleID]
	if bound == nil {
		bound = make(map[int64]struct{})
		m.rolePerms[roleID] = bound
	}
	for _, id := range permissionIDs {
		bound[id] = struct{}{}
	}
	return nil
}

func (m *mockRepository) RecordAudit(ctx context.Context, userID *int64, action string, details map[string]any) error {
	m.audits = append(m.audits, auditRecord{userID: userID, action: action, details: details})
	return nil
}

func (m *mockRepository) keysForRole(roleID int64) []string {
	keys := []string{}
	for id := range m.rolePerms[roleID] {
		keys = append(keys, m.perms[id].Key)
	}
	sort.Strings(keys)
	return keys
}

var (
	_ RepositoryPort = (*mockRepository)(nil)
	_ TxRepository   = (*mockRepository)(nil)
)

// ============================================================================
// PERMISSION CATALOG
// ============================================================================

func TestCreatePermissionRejectsMalformedKeys(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)

	for _, key := range []string{"", "a.", ".b", "Users.Manage", "users", "users.manage.all", "users-manage", "a.b c"} {
		_, err := service.CreatePermission(context.Background(), 1, key, "")
		require.Error(t, err, "key %q", key)
		assert.ErrorIs(t, err, httpx.ErrValidation, "key %q", key)
	}
	assert.Empty(t, repo.perms, "no row may be persisted for rejected keys")
	assert.Empty(t, repo.audits, "no audit entry for rejected keys")
}

func TestCreatePermissionPersistsAndAudits(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)

	perm, err := service.CreatePermission(context.Background(), 42, "loads.assign", "Assign loads to trips")
	require.NoError(t, err)
	assert.Equal(t, "loads.assign", perm.Key)

	require.Len(t, repo.audits, 1)
	entry := repo.audits[0]
	assert.Equal(t, ActionPermissionsCreate, entry.action)
	require.NotNil(t, entry.userID)
	assert.Equal(t, int64(42), *entry.userID)
	assert.Equal(t, perm.ID, entry.details["permissionId"])
	assert.Equal(t, "loads.assign", entry.details["key"])
}

func TestCreatePermissionDuplicateKey(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)

	_, err := service.CreatePermission(context.Background(), 1, "trips.view", "")
	require.NoError(t, err)
	_, err = service.CreatePermission(context.Background(), 1, "trips.view", "")
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
	assert.Len(t, repo.audits, 1, "failed create must not audit")
}

func TestUpdatePermissionRevalidatesKey(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)

	perm, err := service.CreatePermission(context.Background(), 1, "trips.view", "")
	require.NoError(t, err)

	bad := "Trips.VIEW"
	_, err = service.UpdatePermission(context.Background(), 1, perm.ID, PermissionPatch{Key: &bad})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	renamed := "trips.read"
	updated, err := service.UpdatePermission(context.Background(), 1, perm.ID, PermissionPatch{Key: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "trips.read", updated.Key)
}

func TestDeletePermissionInUse(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)
	ctx := context.Background()

	perm, err := service.CreatePermission(ctx, 1, "users.manage", "")
	require.NoError(t, err)
	role, err := service.CreateRole(ctx, 1, "admin", "")
	require.NoError(t, err)
	_, err = service.SetRolePermissions(ctx, 1, role.ID, []string{"users.manage"})
	require.NoError(t, err)

	before := repo.keysForRole(role.ID)
	audits := len(repo.audits)

	err = service.DeletePermission(ctx, 1, perm.ID)
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
	assert.Contains(t, err.Error(), "permission in use")
	assert.Equal(t, before, repo.keysForRole(role.ID), "bindings must be untouched")
	assert.Contains(t, repo.perms, perm.ID)
	assert.Len(t, repo.audits, audits, "rejected delete must not audit")
}

func TestDeletePermissionUnbound(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)
	ctx := context.Background()

	perm, err := service.CreatePermission(ctx, 1, "fuel.report", "")
	require.NoError(t, err)
	require.NoError(t, service.DeletePermission(ctx, 1, perm.ID))
	assert.NotContains(t, repo.perms, perm.ID)
	assert.Equal(t, ActionPermissionsDelete, repo.audits[len(repo.audits)-1].action)
}

// ============================================================================
// ROLE STORE
// ============================================================================

func TestCreateRoleValidatesName(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)

	_, err := service.CreateRole(context.Background(), 1, "a", "")
	assert.ErrorIs(t, err, httpx.ErrValidation)

	role, err := service.CreateRole(context.Background(), 1, "dispatcher", "")
	require.NoError(t, err)
	assert.Empty(t, role.Permissions, "new role starts with an empty set")
}

func TestSetRolePermissionsAutoProvisionsMissingKeys(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, 1, "dispatcher", "")
	require.NoError(t, err)

	updated, err := service.SetRolePermissions(ctx, 7, role.ID, []string{"trips.create", "loads.assign", "trips.create"})
	require.NoError(t, err)
	assert.Equal(t, []string{"loads.assign", "trips.create"}, updated.Permissions)
	assert.Len(t, repo.perms, 2, "exactly one row per new key")

	entry := repo.audits[len(repo.audits)-1]
	assert.Equal(t, ActionRolePermsSet, entry.action)
	assert.Equal(t, int64(7), *entry.userID)
	assert.Equal(t, role.ID, entry.details["roleId"])
	assert.Equal(t, []string{"loads.assign", "trips.create"}, entry.details["keys"])
}

func TestSetRolePermissionsIsIdempotent(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, 1, "dispatcher", "")
	require.NoError(t, err)

	keys := []string{"trips.create", "loads.assign"}
	first, err := service.SetRolePermissions(ctx, 1, role.ID, keys)
	require.NoError(t, err)
	second, err := service.SetRolePermissions(ctx, 1, role.ID, keys)
	require.NoError(t, err)

	assert.Equal(t, first.Permissions, second.Permissions)
	assert.Len(t, repo.perms, 2, "second call must not create extra permission rows")
	assert.Len(t, repo.rolePerms[role.ID], 2)
}

func TestSetRolePermissionsReplacesExistingSet(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, 1, "dispatcher", "")
	require.NoError(t, err)

	_, err = service.SetRolePermissions(ctx, 1, role.ID, []string{"trips.create", "loads.assign"})
	require.NoError(t, err)
	updated, err := service.SetRolePermissions(ctx, 1, role.ID, []string{"trips.view"})
	require.NoError(t, err)

	assert.Equal(t, []string{"trips.view"}, updated.Permissions)
	assert.Len(t, repo.rolePerms[role.ID], 1, "old bindings must be gone")
}

func TestSetRolePermissionsEmptySetClearsRole(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, 1, "dispatcher", "")
	require.NoError(t, err)
	_, err = service.SetRolePermissions(ctx, 1, role.ID, []string{"trips.view"})
	require.NoError(t, err)

	updated, err := service.SetRolePermissions(ctx, 1, role.ID, []string{})
	require.NoError(t, err)
	assert.Empty(t, updated.Permissions)
}

func TestSetRolePermissionsValidatesKeys(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, 1, "dispatcher", "")
	require.NoError(t, err)

	_, err = service.SetRolePermissions(ctx, 1, role.ID, []string{"not a key"})
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Empty(t, repo.perms, "nothing may be provisioned for invalid keys")
}

func TestSetRolePermissionsUnknownRole(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)

	_, err := service.SetRolePermissions(context.Background(), 1, 99, []string{"trips.view"})
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestDeleteRoleRejectedWhileAssigned(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, 1, "dispatcher", "")
	require.NoError(t, err)
	repo.roleUsers[role.ID] = 3

	err = service.DeleteRole(ctx, 1, role.ID)
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
	assert.Contains(t, repo.roles, role.ID)

	repo.roleUsers[role.ID] = 0
	require.NoError(t, service.DeleteRole(ctx, 1, role.ID))
	assert.NotContains(t, repo.roles, role.ID)
}

func TestEveryMutationAuditsExactlyOnce(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)
	ctx := context.Background()

	perm, err := service.CreatePermission(ctx, 1, "trips.view", "")
	require.NoError(t, err)
	desc := "updated"
	_, err = service.UpdatePermission(ctx, 1, perm.ID, PermissionPatch{Description: &desc})
	require.NoError(t, err)
	role, err := service.CreateRole(ctx, 1, "dispatcher", "")
	require.NoError(t, err)
	_, err = service.UpdateRole(ctx, 1, role.ID, "dispatch", "renamed")
	require.NoError(t, err)
	_, err = service.SetRolePermissions(ctx, 1, role.ID, []string{"trips.view"})
	require.NoError(t, err)

	actions := make([]string, len(repo.audits))
	for i, entry := range repo.audits {
		actions[i] = entry.action
	}
	assert.Equal(t, []string{
		ActionPermissionsCreate,
		ActionPermissionsUpdate,
		ActionRolesCreate,
		ActionRolesUpdate,
		ActionRolePermsSet,
	}, actions)
}
