package pebble

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"clamm/internal/model"
)

func testSnapshot(addresses ...string) model.Snapshot {
	snap := model.Snapshot{NextTokenID: 7}
	for i, addr := range addresses {
		snap.Pools = append(snap.Pools, model.Pool{
			Address:      addr,
			Fee:          3000,
			TickSpacing:  60,
			Initialized:  true,
			SqrtPriceX96: "79228162514264337593543950336",
			Tick:         int32(i),
			Liquidity:    "1000",
		})
	}
	return snap
}

func TestSaveLoad(t *testing.T) {
	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Load(DefaultName)
	require.NoError(t, err)
	require.False(t, ok)

	a := "0x00000000000000000000000000000000000000A1"
	b := "0x00000000000000000000000000000000000000b2"
	snap := testSnapshot(common.HexToAddress(a).Hex(), common.HexToAddress(b).Hex())
	require.NoError(t, store.Save(DefaultName, snap))

	loaded, ok, err := store.Load(DefaultName)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, snap, loaded)

	p, ok, err := store.LoadPool(DefaultName, common.HexToAddress(b))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(1), p.Tick)

	pools, err := store.Pools(DefaultName)
	require.NoError(t, err)
	require.Len(t, pools, 2)

	// Saving again replaces the pool records rather than merging them.
	require.NoError(t, store.Save(DefaultName, testSnapshot(common.HexToAddress(a).Hex())))
	pools, err = store.Pools(DefaultName)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	_, ok, err = store.LoadPool(DefaultName, common.HexToAddress(b))
	require.NoError(t, err)
	require.False(t, ok)

	// Other names are independent.
	require.NoError(t, store.Save("other", testSnapshot()))
	pools, err = store.Pools(DefaultName)
	require.NoError(t, err)
	require.Len(t, pools, 1)
}

func TestClosedStore(t *testing.T) {
	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.ErrorIs(t, store.Save(DefaultName, testSnapshot()), ErrDBClosed)
	_, _, err = store.Load(DefaultName)
	require.ErrorIs(t, err, ErrDBClosed)
}

func TestPrefixEnd(t *testing.T) {
	prefix := []byte("pool/latest/")
	end := prefixEnd(prefix)
	require.Equal(t, 1, bytes.Compare(end, prefix))
	require.Equal(t, -1, bytes.Compare(PoolKey("latest", common.Address{}), end))
	require.Nil(t, prefixEnd([]byte{0xff, 0xff}))
	require.Equal(t, []byte{0x01}, prefixEnd([]byte{0x00, 0xff}))
}
