package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	&SysOpr{},
	&SysOprLog{},
	&SysPartner{},
	// Messaging
	&ChatSession{},
	&ChatMessage{},
	&ChatContact{},
}
