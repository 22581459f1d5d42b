package fixprotocol

// Well-known tag numbers the gateway treats specially, either as envelope
// fields or as symbolic names bound into the expression evaluator.
const (
	TagBeginString  = 8
	TagBodyLength   = 9
	TagMsgType      = 35
	TagSenderCompID = 49
	TagTargetCompID = 56
	TagMsgSeqNum    = 34
	TagSendingTime  = 52
	TagCheckSum     = 10
	TagClOrdID      = 11
	TagSymbol       = 55
	TagSide         = 54
	TagOrderQty     = 38
	TagOrdType      = 40
	TagPrice        = 44
	TagTimeInForce  = 59
)

// symbolicTagNames maps a tag number to the name the expression evaluator
// binds it under when a symbolic name is known.
var symbolicTagNames = map[int]string{
	TagBeginString:  "BeginString",
	TagBodyLength:   "BodyLength",
	TagMsgType:      "MsgType",
	TagSenderCompID: "SenderCompID",
	TagTargetCompID: "TargetCompID",
	TagMsgSeqNum:    "MsgSeqNum",
	TagSendingTime:  "SendingTime",
	TagCheckSum:     "CheckSum",
	TagClOrdID:      "ClOrdID",
	TagSymbol:       "Symbol",
	TagSide:         "Side",
	TagOrderQty:     "OrderQty",
	TagOrdType:      "OrdType",
	TagPrice:        "Price",
	TagTimeInForce:  "TimeInForce",
}

// SymbolicName returns the symbolic name bound for tag, and whether one is known.
func SymbolicName(tag int) (string, bool) {
	name, ok := symbolicTagNames[tag]
	return name, ok
}
