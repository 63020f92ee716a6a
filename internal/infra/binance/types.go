package binance

import (
	"github.com/makwana23-Harshil/binance-bot/internal/domain"
)

// Default endpoints for Binance USDT-M futures.
const (
	MainnetRestURL = "https://fapi.binance.com"
	TestnetRestURL = "https://demo-trading.binance.com"
	MainnetWSURL   = "wss://fstream.binance.com"
)

// apiError is the error envelope every REST endpoint may return.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Futures error codes this client reacts to specifically.
const (
	codeUnknownOrder      = -2011 // cancel: unknown order sent
	codeOrderDoesNotExist = -2013 // query: order does not exist
	codeDuplicateClientID = -4116 // submit: client order id is duplicated
	codeTimestampOutside  = -1021 // recv window: retry with fresh timestamp
	codeServerBusy        = -1001 // internal error, try again
)

// orderResponse is the subset of the order endpoint response we consume.
type orderResponse struct {
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	ExecutedQty   string `json:"executedQty"`
	AvgPrice      string `json:"avgPrice"`
}

// markPriceMessage is one frame of the <symbol>@markPrice stream.
type markPriceMessage struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
}

// userDataMessage is one frame of the user-data stream. Only
// ORDER_TRADE_UPDATE frames are consumed.
type userDataMessage struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Order     struct {
		ClientOrderID string `json:"c"`
		Symbol        string `json:"s"`
		Status        string `json:"X"`
		LastFilledQty string `json:"l"`
		CumFilledQty  string `json:"z"`
	} `json:"o"`
}

// listenKeyResponse is the user-data stream handshake response.
type listenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

// mapOrderStatus converts an exchange status string to the domain status.
func mapOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "NEW":
		return domain.StatusOpen
	case "PARTIALLY_FILLED":
		return domain.StatusPartiallyFilled
	case "FILLED":
		return domain.StatusFilled
	case "CANCELED", "EXPIRED":
		return domain.StatusCanceled
	case "REJECTED":
		return domain.StatusRejected
	default:
		return domain.StatusPending
	}
}
