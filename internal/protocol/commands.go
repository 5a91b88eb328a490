package protocol

// Command codes. These canonical values must be preserved for client
// compatibility (SPEC_FULL.md §6).
const (
	CmdAuthLoginRequest  uint16 = 0x0001
	CmdAuthKeepAlive     uint16 = 0x0002 // zero-payload, sent by the maintenance loop
	CmdAuthLoginResponse uint16 = 0x0003
	CmdAuthDisconnect    uint16 = 0x0004

	CmdChatSay    uint16 = 0x0101
	CmdChatShout  uint16 = 0x0102
	CmdChatWhisper uint16 = 0x0103
	CmdChatParty  uint16 = 0x0104

	CmdMoveRequest  uint16 = 0x0201
	CmdMoveUpdate   uint16 = 0x0202
	CmdMoveStop     uint16 = 0x0203

	CmdCombatAttack    uint16 = 0x0301
	CmdCombatSkill     uint16 = 0x0302
	CmdCombatResult    uint16 = 0x0303
	CmdCombatTargetSel uint16 = 0x0304

	CmdItemUse        uint16 = 0x0401
	CmdItemDrop       uint16 = 0x0402
	CmdItemPickup     uint16 = 0x0403
	CmdTradeRequest   uint16 = 0x0404
	CmdTradeAccept    uint16 = 0x0405
	CmdShopBuy        uint16 = 0x0406
	CmdShopSell       uint16 = 0x0407
	CmdInventoryList  uint16 = 0x0408

	CmdSystemPing       uint16 = 0x0501
	CmdSystemCharSelect uint16 = 0x0502
	CmdSystemEnterWorld uint16 = 0x0503
	CmdSystemLogout     uint16 = 0x0504
	CmdSystemRestart    uint16 = 0x0505
	CmdSystemConfig     uint16 = 0x0506

	CmdGuildCreate  uint16 = 0x0601
	CmdGuildInvite  uint16 = 0x0602
	CmdGuildLeave   uint16 = 0x0603
	CmdGuildInfo    uint16 = 0x0604
	CmdGuildWar     uint16 = 0x0605
	CmdGuildSiege   uint16 = 0x0606
	CmdGuildMemberList uint16 = 0x0607

	CmdMiscEmote       uint16 = 0x0701
	CmdMiscPartyInvite uint16 = 0x0702
	CmdMiscPartyLeave  uint16 = 0x0703
	CmdMiscFriendAdd   uint16 = 0x0704
	CmdMiscFriendList  uint16 = 0x0705
	CmdMiscMacro       uint16 = 0x0706
	CmdMiscBookmark    uint16 = 0x0707
	CmdMiscAppearance  uint16 = 0x0708

	CmdAdminKick       uint16 = 0x0901
	CmdAdminBan        uint16 = 0x0902
	CmdAdminBroadcast  uint16 = 0x0903
	CmdAdminSpawn      uint16 = 0x0904
	CmdEventNotify     uint16 = 0x0905
)
