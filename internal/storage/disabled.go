package storage

import (
	"context"

	"github.com/leadengine/instance-sync/internal/instances"
)

// DisabledStore is used when persistence is turned off for the environment
type DisabledStore struct{}

// NewDisabledStore returns a store whose every call fails with ErrStorageDisabled
func NewDisabledStore() *DisabledStore {
	return &DisabledStore{}
}

func (DisabledStore) ListByTenant(context.Context, string) ([]*instances.Instance, error) {
	return nil, ErrStorageDisabled
}

func (DisabledStore) Get(context.Context, string, string) (*instances.Instance, error) {
	return nil, ErrStorageDisabled
}

func (DisabledStore) Create(context.Context, *instances.Instance) error {
	return ErrStorageDisabled
}

func (DisabledStore) Update(context.Context, *instances.Instance) error {
	return ErrStorageDisabled
}

func (DisabledStore) Delete(context.Context, string, string) error {
	return ErrStorageDisabled
}

func (DisabledStore) ListTenants(context.Context) ([]string, error) {
	return nil, ErrStorageDisabled
}

func (DisabledStore) GetState(context.Context, string) ([]byte, bool, error) {
	return nil, false, ErrStorageDisabled
}

func (DisabledStore) GetStates(context.Context, []string) (map[string][]byte, error) {
	return nil, ErrStorageDisabled
}

func (DisabledStore) PutState(context.Context, string, []byte) error {
	return ErrStorageDisabled
}

func (DisabledStore) DeleteState(context.Context, string) error {
	return ErrStorageDisabled
}

func (DisabledStore) Ping(context.Context) error {
	return ErrStorageDisabled
}

func (DisabledStore) Close() error {
	return nil
}

var _ Store = DisabledStore{}
