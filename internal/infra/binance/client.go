package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// Client is the signed REST client for Binance USDT-M futures order
// endpoints. All methods classify failures into domain.GatewayError so the
// retry policy can decide what is worth retrying.
type Client struct {
	baseURL string
	signer  *Signer
	http    *http.Client
}

// NewClient creates a REST client. baseURL selects mainnet or testnet.
func NewClient(baseURL string, signer *Signer) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// qtyString renders a fixed-point quantity as the exchange decimal string.
func qtyString(q quant.QtySats) string {
	return decimal.NewFromInt(int64(q)).Div(decimal.NewFromInt(quant.QtyScale)).String()
}

// priceString renders a fixed-point price as the exchange decimal string.
func priceString(p quant.PriceMicros) string {
	return decimal.NewFromInt(int64(p)).Div(decimal.NewFromInt(quant.PriceScale)).String()
}

// SubmitOrder places a new order carrying the caller's idempotency token
// as newClientOrderId.
func (c *Client) SubmitOrder(ctx context.Context, o domain.Order) error {
	params := url.Values{}
	params.Set("symbol", o.Symbol)
	params.Set("side", string(o.Side))
	params.Set("quantity", qtyString(o.QtySats))
	params.Set("newClientOrderId", o.ClientID)
	params.Set("newOrderRespType", "RESULT")

	switch o.Kind {
	case domain.KindMarket:
		params.Set("type", "MARKET")
	case domain.KindLimit:
		params.Set("type", "LIMIT")
		params.Set("price", priceString(o.LimitPriceMicros))
		params.Set("timeInForce", "GTC")
	case domain.KindStopLimit:
		params.Set("type", "STOP")
		params.Set("price", priceString(o.LimitPriceMicros))
		params.Set("stopPrice", priceString(o.StopPriceMicros))
		params.Set("timeInForce", "GTC")
		params.Set("workingType", "MARK_PRICE")
		params.Set("priceProtect", "TRUE")
	default:
		return &domain.GatewayError{Msg: fmt.Sprintf("unsupported order kind %s", o.Kind)}
	}

	if o.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	var resp orderResponse
	return c.call(ctx, http.MethodPost, "/fapi/v1/order", params, &resp)
}

// CancelOrder cancels by client order id.
func (c *Client) CancelOrder(ctx context.Context, clientID, symbol string) (domain.CancelOutcome, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientID)

	var resp orderResponse
	err := c.call(ctx, http.MethodDelete, "/fapi/v1/order", params, &resp)
	if err != nil {
		if ge, ok := domain.AsGatewayError(err); ok && ge.Code == codeUnknownOrder {
			// The order is gone from the book: filled, already canceled, or
			// never created. Query disambiguates terminal vs missing.
			snap, qerr := c.QueryOrder(ctx, clientID, symbol)
			if qerr == nil && snap.Status.IsTerminal() {
				return domain.CancelAlreadyTerminal, nil
			}
			return domain.CancelNotFound, nil
		}
		return "", err
	}
	return domain.CancelDone, nil
}

// QueryOrder fetches the exchange-side snapshot of an order.
func (c *Client) QueryOrder(ctx context.Context, clientID, symbol string) (domain.OrderSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientID)

	var resp orderResponse
	if err := c.call(ctx, http.MethodGet, "/fapi/v1/order", params, &resp); err != nil {
		if ge, ok := domain.AsGatewayError(err); ok && ge.Code == codeOrderDoesNotExist {
			return domain.OrderSnapshot{}, domain.ErrNotFound
		}
		return domain.OrderSnapshot{}, err
	}

	return domain.OrderSnapshot{
		ClientID:       resp.ClientOrderID,
		Status:         mapOrderStatus(resp.Status),
		FilledQtySats:  quant.ToQtySatsStr(resp.ExecutedQty),
		AvgPriceMicros: quant.ToPriceMicrosStr(resp.AvgPrice),
	}, nil
}

// CreateListenKey opens a user-data stream and returns its key.
func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	var resp listenKeyResponse
	if err := c.call(ctx, http.MethodPost, "/fapi/v1/listenKey", url.Values{}, &resp); err != nil {
		return "", err
	}
	return resp.ListenKey, nil
}

// KeepAliveListenKey extends the user-data stream validity.
func (c *Client) KeepAliveListenKey(ctx context.Context) error {
	return c.call(ctx, http.MethodPut, "/fapi/v1/listenKey", url.Values{}, nil)
}

// call executes one signed request and decodes the response into out.
func (c *Client) call(ctx context.Context, method, path string, params url.Values, out any) error {
	query := c.signer.Sign(params.Encode())

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query, nil)
	if err != nil {
		return &domain.GatewayError{Msg: err.Error(), Transient: true}
	}
	req.Header.Set("X-MBX-APIKEY", c.signer.APIKey())

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failure: the request may or may not have reached the
		// exchange. Retry with the same ClientID; duplicates are detected
		// server-side.
		return &domain.GatewayError{Msg: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &domain.GatewayError{Msg: err.Error(), Transient: true}
	}

	if resp.StatusCode != http.StatusOK {
		return classifyHTTPError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.GatewayError{Msg: fmt.Sprintf("malformed response: %v", err)}
	}
	return nil
}

// classifyHTTPError turns a non-200 response into a GatewayError.
func classifyHTTPError(status int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)

	ge := &domain.GatewayError{Code: ae.Code, Msg: ae.Msg}
	if ge.Msg == "" {
		ge.Msg = fmt.Sprintf("http %d", status)
	}

	switch {
	case status == http.StatusTooManyRequests || status == 418:
		// 418 is the IP-ban escalation; backing off is the only option.
		ge.Transient = true
	case status >= 500:
		ge.Transient = true
	case ae.Code == codeTimestampOutside || ae.Code == codeServerBusy:
		ge.Transient = true
	case ae.Code == codeDuplicateClientID:
		ge.Duplicate = true
	}
	return ge
}
