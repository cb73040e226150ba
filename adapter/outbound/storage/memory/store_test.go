package memory

import (
	"testing"

	"github.com/evnchn/3D-Print-Me/adapter/outbound/storage/storetest"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

func TestUserStore(t *testing.T) {
	storetest.RunUserStoreTests(t, func(t *testing.T) outbound.UserStore {
		return NewUserStore()
	})
}

func TestAPITokenStore(t *testing.T) {
	storetest.RunAPITokenStoreTests(t, func(t *testing.T) outbound.APITokenStore {
		return NewAPITokenStore()
	})
}
