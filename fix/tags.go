// Package fix holds the FIX tag numbers used by fixfeed and decodes inbound
// messages into the models.Inbound union.
package fix

import "github.com/quickfixgo/enum"

// Message types.
const (
	MsgTypeReject            = string(enum.MsgType_REJECT)
	MsgTypeLogout            = string(enum.MsgType_LOGOUT)
	MsgTypeLogon             = string(enum.MsgType_LOGON)
	MsgTypeMarketDataRequest = string(enum.MsgType_MARKET_DATA_REQUEST)
	MsgTypeSnapshot          = string(enum.MsgType_MARKET_DATA_SNAPSHOT_FULL_REFRESH)
	MsgTypeIncremental       = string(enum.MsgType_MARKET_DATA_INCREMENTAL_REFRESH)
	MsgTypeMDReject          = string(enum.MsgType_MARKET_DATA_REQUEST_REJECT)
	MsgTypeSecurityStatus    = string(enum.MsgType_SECURITY_STATUS)
	MsgTypeBusinessReject    = string(enum.MsgType_BUSINESS_MESSAGE_REJECT)
	MsgTypeSecurityList      = string(enum.MsgType_SECURITY_LIST)
	MsgTypeSecurityListReq   = string(enum.MsgType_SECURITY_LIST_REQUEST)
)

// Tag numbers.
const (
	TagCheckSum             = 10
	TagMsgType              = 35
	TagRefSeqNum            = 45
	TagSymbol               = 55
	TagText                 = 58
	TagNoRelatedSym         = 146
	TagMDReqID              = 262
	TagSubscriptionReqType  = 263
	TagMarketDepth          = 264
	TagMDUpdateType         = 265
	TagNoMDEntryTypes       = 267
	TagNoMDEntries          = 268
	TagMDEntryType          = 269
	TagMDEntryPx            = 270
	TagMDEntrySize          = 271
	TagMDEntryDate          = 272
	TagMDEntryTime          = 273
	TagMDUpdateAction       = 279
	TagMDEntryID            = 278
	TagMDEntryRefID         = 280
	TagMDReqRejReason       = 281
	TagSecurityReqID        = 320
	TagSecurityTradingStat  = 326
	TagSecurityListReqType  = 559
	TagRefTagID             = 371
	TagRefMsgType           = 372
	TagSessionRejectReason  = 373
	TagBusinessRejectReason = 380
)
