package upbit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fillbot/internal/domain"
)

const (
	fallbackOrdersPath = "/v1/orders"
	pageLimit          = 100
	requestTimeout     = 20 * time.Second
)

// Client queries the exchange's closed-order history with signed requests.
type Client struct {
	accessKey   string
	secretKey   string
	baseURL     string
	ordersPath  string
	market      string
	marketAsset string
	maxPages    int
	loc         *time.Location
	http        *http.Client
	logger      *slog.Logger
}

type Config struct {
	AccessKey   string
	SecretKey   string
	BaseURL     string
	OrdersPath  string
	Market      string // exact market pair filter, e.g. KRW-BTC
	MarketAsset string // base asset fallback filter, e.g. BTC
	MaxPages    int
	Location    *time.Location
	HTTPClient  *http.Client // optional, for tests
	Logger      *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.OrdersPath == "" {
		cfg.OrdersPath = "/v1/orders/closed"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 30
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newHTTPClient(requestTimeout)
	}
	return &Client{
		accessKey:   cfg.AccessKey,
		secretKey:   cfg.SecretKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		ordersPath:  cfg.OrdersPath,
		market:      cfg.Market,
		marketAsset: strings.ToUpper(cfg.MarketAsset),
		maxPages:    cfg.MaxPages,
		loc:         cfg.Location,
		http:        cfg.HTTPClient,
		logger:      cfg.Logger,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// orderRow is the exchange's closed-order payload. Numeric fields arrive as
// strings.
type orderRow struct {
	UUID           string `json:"uuid"`
	Market         string `json:"market"`
	Side           string `json:"side"`
	OrdType        string `json:"ord_type"`
	Price          string `json:"price"`
	ExecutedVolume string `json:"executed_volume"`
	ExecutedFunds  string `json:"executed_funds"`
	DoneAt         string `json:"done_at"`
	CreatedAt      string `json:"created_at"`
}

// FillsForDate returns buy-side fills of the tracked asset executed on the
// given calendar day (in the configured timezone). Sell-side, other-asset,
// and zero-quantity rows are skipped, not reported as errors. An empty
// result is a normal outcome.
func (c *Client) FillsForDate(ctx context.Context, day time.Time) ([]domain.FillRecord, error) {
	target := day.In(c.loc)
	targetY, targetM, targetD := target.Date()

	var (
		out        []domain.FillRecord
		totalRows  int
		skipDate   int
		skipMarket int
		skipSide   int
		skipQty    int
		skipAmount int
		page       int
	)

	for page = 1; page <= c.maxPages; page++ {
		rows, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		totalRows += len(rows)

		for _, row := range rows {
			doneAt := parseTimestamp(row.DoneAt, c.loc)
			createdAt := parseTimestamp(row.CreatedAt, c.loc)
			if doneAt.IsZero() && createdAt.IsZero() {
				continue
			}

			if !sameDate(doneAt, targetY, targetM, targetD) && !sameDate(createdAt, targetY, targetM, targetD) {
				skipDate++
				continue
			}

			if !c.marketMatches(row.Market) {
				skipMarket++
				continue
			}

			if row.Side != "bid" {
				skipSide++
				continue
			}

			qty := parseNumber(row.ExecutedVolume)
			if qty <= 0 {
				skipQty++
				continue
			}

			rawPrice := parseNumber(row.Price)
			executedFunds := parseNumber(row.ExecutedFunds)

			// Market buys (ord_type=price) report total spend in "price",
			// not unit price; derive unit price from the notional.
			var amount float64
			if row.OrdType == "price" && rawPrice > 0 {
				amount = rawPrice
			} else if executedFunds > 0 {
				amount = executedFunds
			} else if rawPrice > 0 {
				amount = rawPrice * qty
			}
			if amount <= 0 {
				skipAmount++
				continue
			}

			var price float64
			if row.OrdType == "price" {
				price = amount / qty
			} else if rawPrice > 0 {
				price = rawPrice
			} else {
				price = amount / qty
			}

			executedAt := doneAt
			if executedAt.IsZero() {
				executedAt = createdAt
			}

			fillID := row.UUID
			if fillID == "" {
				fillID = fmt.Sprintf("%s:%s:%v:%v", row.Market, executedAt.Format(time.RFC3339), qty, price)
			}

			out = append(out, domain.FillRecord{
				ID:         fillID,
				Symbol:     c.marketAsset,
				Market:     row.Market,
				Side:       domain.SideBuy,
				Price:      price,
				Quantity:   qty,
				Amount:     amount,
				ExecutedAt: executedAt,
				Source:     domain.SourceExchange,
			})
		}
	}

	c.logger.Info("exchange fetch done",
		"target_date", target.Format("2006-01-02"),
		"market", c.market,
		"asset", c.marketAsset,
		"rows", totalRows,
		"fills", len(out),
		"skip_date", skipDate,
		"skip_market", skipMarket,
		"skip_side", skipSide,
		"skip_qty", skipQty,
		"skip_amount", skipAmount,
		"pages", page-1,
	)
	return out, nil
}

// marketMatches applies the market pair filter with a base-asset fallback:
// an unexpected pair still passes when its base asset is the tracked one.
func (c *Client) marketMatches(market string) bool {
	baseAsset := strings.ToUpper(market)
	if i := strings.LastIndex(market, "-"); i >= 0 {
		baseAsset = strings.ToUpper(market[i+1:])
	}
	if c.marketAsset != "" && baseAsset != c.marketAsset {
		return false
	}
	if c.market != "" && market != c.market {
		return c.marketAsset != "" && baseAsset == c.marketAsset
	}
	return true
}

func (c *Client) fetchPage(ctx context.Context, page int) ([]orderRow, error) {
	params := url.Values{}
	params.Add("states[]", "done")
	params.Add("states[]", "cancel")
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(pageLimit))
	params.Set("order_by", "desc")
	rawQuery := params.Encode()

	rows, status, err := c.doOrders(ctx, c.ordersPath, rawQuery)
	if err != nil {
		return nil, err
	}
	// Older deployments only expose /v1/orders.
	if (status == http.StatusNotFound || status == http.StatusMethodNotAllowed) && c.ordersPath != fallbackOrdersPath {
		rows, status, err = c.doOrders(ctx, fallbackOrdersPath, rawQuery)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("exchange order history: unexpected status %d", status)
	}
	return rows, nil
}

func (c *Client) doOrders(ctx context.Context, path, rawQuery string) ([]orderRow, int, error) {
	token, err := authToken(c.accessKey, c.secretKey, rawQuery)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+rawQuery, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("exchange request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	var rows []orderRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode order history: %w", err)
	}
	return rows, resp.StatusCode, nil
}

func parseTimestamp(s string, loc *time.Location) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.In(loc)
}

func sameDate(t time.Time, y int, m time.Month, d int) bool {
	if t.IsZero() {
		return false
	}
	ty, tm, td := t.Date()
	return ty == y && tm == m && td == d
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
