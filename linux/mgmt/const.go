package mgmt

// IndexNone addresses commands and events that are not bound to a controller.
const IndexNone uint16 = 0xffff

// HeaderLength is the size of the fixed packet header: opcode or event
// code, controller index and parameter length, all little-endian uint16.
const HeaderLength = 6

// Command opcodes.
const (
	OpReadVersion   uint16 = 0x0001
	OpReadCommands  uint16 = 0x0002
	OpReadIndexList uint16 = 0x0003
	OpReadInfo      uint16 = 0x0004
	OpSetPowered    uint16 = 0x0005
)

// Event codes.
const (
	EvtCommandComplete   uint16 = 0x0001
	EvtCommandStatus     uint16 = 0x0002
	EvtControllerError   uint16 = 0x0003
	EvtIndexAdded        uint16 = 0x0004
	EvtIndexRemoved      uint16 = 0x0005
	EvtNewSettings       uint16 = 0x0006
	EvtClassOfDevChanged uint16 = 0x0007
	EvtLocalNameChanged  uint16 = 0x0008
)

// Controller settings bits, as reported by Read Controller Information and
// New Settings.
const (
	SettingPowered         uint32 = 1 << 0
	SettingConnectable     uint32 = 1 << 1
	SettingFastConnectable uint32 = 1 << 2
	SettingDiscoverable    uint32 = 1 << 3
	SettingBondable        uint32 = 1 << 4
	SettingLinkSecurity    uint32 = 1 << 5
	SettingSSP             uint32 = 1 << 6
	SettingBREDR           uint32 = 1 << 7
	SettingHS              uint32 = 1 << 8
	SettingLE              uint32 = 1 << 9
	SettingAdvertising     uint32 = 1 << 10
	SettingSecureConn      uint32 = 1 << 11
	SettingDebugKeys       uint32 = 1 << 12
	SettingPrivacy         uint32 = 1 << 13
	SettingConfiguration   uint32 = 1 << 14
	SettingStaticAddress   uint32 = 1 << 15
)

// Fixed field sizes of Read Controller Information.
const (
	maxNameLength      = 249
	maxShortNameLength = 11
	readInfoRPLength   = 6 + 1 + 2 + 4 + 4 + 3 + maxNameLength + maxShortNameLength
)
