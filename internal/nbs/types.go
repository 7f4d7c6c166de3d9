package nbs

const (
	// MaxFrameSize is the largest NBS frame the broadcast can carry,
	// headers included.
	MaxFrameSize = 5200

	// FrameHeaderSize is the fixed size of the frame-level header.
	FrameHeaderSize = 16

	// ProductHeaderMinSize is the smallest valid product-definition header.
	ProductHeaderMinSize = 16

	// TimeHeaderSize is the fixed size of the time-command header that
	// follows a synchronize-timing frame-level header.
	TimeHeaderSize = 32
)

// Frame-level header command values.
const (
	CmdData uint8 = 3  // product format data transfer
	CmdTime uint8 = 5  // synchronize timing
	CmdTest uint8 = 10 // test message
)

// Product-definition header transfer-type flags.
const (
	TransferStart  uint8 = 1
	TransferInProg uint8 = 2
	TransferEnd    uint8 = 4
	TransferError  uint8 = 8
	TransferAbort  uint8 = 32
	TransferHdrs   uint8 = 64 // optional headers follow (e.g. PSH)
)

// FrameHeader is the decoded 16-byte frame-level header.
type FrameHeader struct {
	HdlcAddress uint8  // always 255, the frame sentinel
	HdlcControl uint8  // unused
	Version     uint8  // SBN version
	Size        uint8  // header size in bytes, always 16
	Control     uint8  // unused
	Command     uint8  // CmdData, CmdTime or CmdTest
	Datastream  uint8  // channel: 1=GOES EAST, 2=GOES WEST, 4=OPT, 5=NMC
	Source      uint8  // uplink transmission path
	Destination uint8  // 0 = all
	SeqNum      uint32 // per-run frame sequence number
	RunNum      uint16 // incremented each time SeqNum resets
	Checksum    uint16 // unsigned sum of the first 14 header bytes
}

// ProductDefinitionHeader is the decoded product-definition header of a
// data-transfer frame.
type ProductDefinitionHeader struct {
	Version         uint8
	Size            uint16 // header size in bytes, >= 16
	TransferType    uint8  // Transfer* flags
	TotalSize       uint16 // PDH size + optional-header size
	PSHSize         uint16 // TotalSize - Size
	BlockNum        uint16 // fragment number within the product, 0..n
	DataBlockOffset uint16 // data offset relative to the data-block area
	DataBlockSize   uint16 // bytes in the data block
	RecsPerBlock    uint8
	BlocksPerRec    uint8
	ProdSeqNum      uint32 // product sequence number within the stream
}
