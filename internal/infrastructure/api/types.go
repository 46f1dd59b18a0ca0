package api

import (
	"github.com/shopspring/decimal"

	"github.com/storefront/client/internal/domain/cart"
)

// Envelope is the backend's uniform response wrapper
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// IsSuccess checks if the response indicates success
func (e *Envelope) IsSuccess() bool {
	return e.Code == 0
}

// ErrMessage returns the backend's error message
func (e *Envelope) ErrMessage() string {
	if e.Message == "" {
		return "backend error"
	}
	return e.Message
}

// ---------------------------------------------------------------------------
// Auth payloads
// ---------------------------------------------------------------------------

// OTPRequest asks the backend to send a one-time passcode
type OTPRequest struct {
	Phone string `json:"phone"`
}

// LoginRequest exchanges a passcode for an access token; the refresh
// credential arrives as a Set-Cookie on the response
type LoginRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// TokenResponse carries a freshly minted access token
type TokenResponse struct {
	Envelope
	Data struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	} `json:"data"`
}

// ---------------------------------------------------------------------------
// Cart payloads
// ---------------------------------------------------------------------------

// CartLine is one server-computed cart line
type CartLine struct {
	ProductID       string          `json:"product_id"`
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountedPrice decimal.Decimal `json:"discounted_price"`
	EffectivePrice  decimal.Decimal `json:"effective_price"`
	Stock           int             `json:"stock"`
}

// CartResponse is the full authoritative cart returned by every cart
// endpoint (read, bulk write, item write, item delete, clear)
type CartResponse struct {
	Envelope
	Data struct {
		Items    []CartLine      `json:"items"`
		Subtotal decimal.Decimal `json:"subtotal"`
		Count    int             `json:"count"`
	} `json:"data"`
}

// Items converts the payload lines to domain items
func (r *CartResponse) Items() cart.Items {
	items := make(cart.Items, 0, len(r.Data.Items))
	for _, line := range r.Data.Items {
		items = append(items, cart.Item{
			ProductID:       line.ProductID,
			SKU:             line.SKU,
			Name:            line.Name,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountedPrice: line.DiscountedPrice,
			EffectivePrice:  line.EffectivePrice,
			Stock:           line.Stock,
		})
	}
	return items
}

// SyncEntry is the id+quantity pair submitted on bulk sync. The full local
// list is always sent, never a diff, so one lost update cannot leave client
// and server partially out of sync.
type SyncEntry struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// BulkSyncRequest replaces the server cart with the submitted list
type BulkSyncRequest struct {
	Items []SyncEntry `json:"items"`
}

// ItemWriteRequest sets the quantity for a single product
type ItemWriteRequest struct {
	Quantity int `json:"quantity"`
}
