package memory

import (
	"testing"

	"printdesign-server/stores/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return NewStore() })
}
