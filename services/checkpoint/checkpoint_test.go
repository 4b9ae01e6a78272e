package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"brleiloes/superbidworker/internal/offer"
)

func testStore(t *testing.T) *Store {
	store, err := NewStore(t.TempDir())
	assert.NoError(t, err)
	store.Now = func() time.Time {
		return time.Date(2026, 3, 15, 12, 30, 45, 0, time.UTC)
	}
	return store
}

func testRecords() []offer.CanonicalRecord {
	return []offer.CanonicalRecord{
		{Source: "superbid", ExternalID: "superbid_1", Link: "https://x/oferta/1", StoreName: "Loja"},
		{Source: "superbid", ExternalID: "superbid_2", Link: "https://x/oferta/2", StoreName: "Loja"},
	}
}

func TestWriteCheckpoint(t *testing.T) {
	store := testStore(t)

	path, err := store.WriteCheckpoint("tecnologia", 2, testRecords())
	assert.NoError(t, err)
	assert.Equal(t, "superbid_tecnologia_ckpt2_20260315_123045.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	assert.NoError(t, err)

	var decoded []offer.CanonicalRecord
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 2)
	assert.Equal(t, "superbid_1", decoded[0].ExternalID)
}

func TestWriteFinalAndConsolidated(t *testing.T) {
	store := testStore(t)

	path, err := store.WriteFinal("imoveis", testRecords())
	assert.NoError(t, err)
	assert.Equal(t, "superbid_imoveis_final_20260315_123045.json", filepath.Base(path))

	path, err = store.WriteConsolidated(testRecords())
	assert.NoError(t, err)
	assert.Equal(t, "superbid_full_consolidated_20260315_123045.json", filepath.Base(path))
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	_, err := NewStore(dir)
	assert.NoError(t, err)

	info, err := os.Stat(dir)
	assert.NoError(t, err)
	assert.True(t, info.IsDir())
}
