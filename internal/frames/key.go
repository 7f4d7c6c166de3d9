package frames

import (
	"fmt"
	"math"
	"time"

	"example.com/nbsgate/internal/nbs"
)

// compare orders two counters on a circular number line so the relation
// survives rollover. It returns <0, 0 or >0 when x precedes, equals or
// follows y.
func compare(x, y uint32) int {
	if x == y {
		return 0
	}
	if x-y > math.MaxUint32/2 {
		return -1
	}
	return 1
}

// Key sorts NOAAPort frames in temporal order. It combines the uplink
// epoch with the frame-level and product-level sequencing fields and
// carries the absolute deadline by which the frame must be released.
type Key struct {
	UplinkID       uint32
	FhSource       uint8
	FhSeqNum       uint32
	FhRunNum       uint16
	PdhSeqNum      uint32
	PdhBlkNum      uint16
	RevealDeadline time.Time
}

// NewKey builds the ordering key for a decoded data-transfer frame. The
// reveal deadline is stamped by the buffer at insertion.
func NewKey(fh *nbs.FrameHeader, pdh *nbs.ProductDefinitionHeader, uplinkID uint32) Key {
	return Key{
		UplinkID:  uplinkID,
		FhSource:  fh.Source,
		FhSeqNum:  fh.SeqNum,
		FhRunNum:  fh.RunNum,
		PdhSeqNum: pdh.ProdSeqNum,
		PdhBlkNum: pdh.BlockNum,
	}
}

// Less reports whether k was uplinked before rhs. Three network events
// must each independently order k earlier:
//   - same uplink path, earlier (product-sequence, block-number) pair;
//   - an NCF switch, which bumps the uplink epoch;
//   - an MGS/data-server switch at the same NCF, which resets product
//     sequencing (product sequence earlier) while the frame-level
//     sequence number jumps ahead.
//
// All counter comparisons are wraparound-safe.
func (k Key) Less(rhs Key) bool {
	uplinkCmp := compare(k.UplinkID, rhs.UplinkID)
	prodSeqCmp := compare(k.PdhSeqNum, rhs.PdhSeqNum)
	blkNumCmp := compare(uint32(k.PdhBlkNum), uint32(rhs.PdhBlkNum))
	fhSeqCmp := compare(k.FhSeqNum, rhs.FhSeqNum)

	earlierAndNoChange := uplinkCmp == 0 && (prodSeqCmp < 0 || (prodSeqCmp == 0 && blkNumCmp < 0))
	earlierButNcfChange := uplinkCmp < 0
	earlierButSrvrChange := uplinkCmp == 0 && fhSeqCmp > 0 && prodSeqCmp < 0

	return earlierAndNoChange || earlierButNcfChange || earlierButSrvrChange
}

// Same reports whether k and rhs occupy the same position in the key
// order (neither sorts before the other).
func (k Key) Same(rhs Key) bool {
	return !k.Less(rhs) && !rhs.Less(k)
}

// IsSuccessorOf reports whether k is the immediate temporal successor of
// prev: the next block of the same product, or the first block of the
// next product, on the same uplink.
func (k Key) IsSuccessorOf(prev Key) bool {
	if k.UplinkID != prev.UplinkID {
		return false
	}
	if k.PdhSeqNum == prev.PdhSeqNum && k.PdhBlkNum == prev.PdhBlkNum+1 {
		return true
	}
	return k.PdhSeqNum == prev.PdhSeqNum+1 && k.PdhBlkNum == 0
}

func (k Key) String() string {
	return fmt.Sprintf("{upId=%d, fhSrc=%d, fhRun=%d, fhSeq=%d, pdhSeq=%d, pdhBlk=%d}",
		k.UplinkID, k.FhSource, k.FhRunNum, k.FhSeqNum, k.PdhSeqNum, k.PdhBlkNum)
}
