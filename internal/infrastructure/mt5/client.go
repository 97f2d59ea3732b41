package mt5

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/domain"
)

// ErrBridge 终端桥接服务返回非预期响应
var ErrBridge = errors.New("mt5 bridge error")

// errNoData 桥接返回 404：终端没有该数据，不算连接故障
var errNoData = errors.New("no data")

// Client 通过 HTTP 访问 MetaTrader5 终端桥接进程
type Client struct {
	baseURL    string
	httpClient *http.Client
	connected  atomic.Bool
}

// NewClient 创建桥接客户端，timeout 即单次终端调用的上限
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type initializeReq struct {
	Login    int64  `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type symbolsResp struct {
	Symbols []string `json:"symbols"`
}

type tickResp struct {
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	Last       float64 `json:"last"`
	Volume     int64   `json:"volume"`
	VolumeReal float64 `json:"volume_real"`
	Flags      uint32  `json:"flags"`
	Time       int64   `json:"time"`
	TimeMsc    int64   `json:"time_msc"`
}

type rateResp struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	TickVolume int64   `json:"tick_volume"`
}

type ratesResp struct {
	Rates []rateResp `json:"rates"`
}

func (c *Client) Connect(ctx context.Context, cred port.Credentials) error {
	err := c.do(ctx, http.MethodPost, "/initialize", nil, initializeReq{
		Login:    cred.Login,
		Password: cred.Password,
		Server:   cred.Server,
	}, nil)
	if err != nil {
		c.connected.Store(false)
		return fmt.Errorf("initialize: %w", err)
	}
	c.connected.Store(true)
	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	defer c.connected.Store(false)
	if err := c.do(ctx, http.MethodPost, "/shutdown", nil, nil, nil); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (c *Client) Connected() bool { return c.connected.Load() }

func (c *Client) Symbols(ctx context.Context) []string {
	var out symbolsResp
	if !c.query(ctx, http.MethodGet, "/symbols", nil, &out) {
		return nil
	}
	return out.Symbols
}

func (c *Client) SymbolSelect(ctx context.Context, symbol string) bool {
	return c.flag(ctx, http.MethodPost, symbolPath(symbol, "select"))
}

func (c *Client) MarketBookAdd(ctx context.Context, symbol string) bool {
	return c.flag(ctx, http.MethodPost, symbolPath(symbol, "book"))
}

func (c *Client) MarketBookRelease(ctx context.Context, symbol string) bool {
	return c.flag(ctx, http.MethodDelete, symbolPath(symbol, "book"))
}

func (c *Client) Tick(ctx context.Context, symbol string) (domain.Tick, bool) {
	var t tickResp
	if !c.query(ctx, http.MethodGet, symbolPath(symbol, "tick"), nil, &t) {
		return domain.Tick{}, false
	}
	ts := time.Unix(t.Time, 0)
	if t.TimeMsc > 0 {
		ts = time.UnixMilli(t.TimeMsc)
	}
	return domain.Tick{
		Bid:        t.Bid,
		Ask:        t.Ask,
		Last:       t.Last,
		Volume:     t.Volume,
		VolumeReal: t.VolumeReal,
		Flags:      t.Flags,
		Time:       ts.UTC(),
	}, true
}

func (c *Client) Bars(ctx context.Context, symbol string, tf domain.Timeframe, offset, count int) []domain.Bar {
	params := url.Values{}
	params.Set("timeframe", string(tf))
	params.Set("start", strconv.Itoa(offset))
	params.Set("count", strconv.Itoa(count))

	var out ratesResp
	if !c.query(ctx, http.MethodGet, symbolPath(symbol, "rates"), params, &out) {
		return nil
	}
	bars := make([]domain.Bar, 0, len(out.Rates))
	for _, r := range out.Rates {
		bars = append(bars, domain.Bar{
			Time:       time.Unix(r.Time, 0).UTC(),
			Open:       r.Open,
			High:       r.High,
			Low:        r.Low,
			Close:      r.Close,
			TickVolume: r.TickVolume,
		})
	}
	return bars
}

func symbolPath(symbol, action string) string {
	return "/symbols/" + url.PathEscape(symbol) + "/" + action
}

func (c *Client) flag(ctx context.Context, method, path string) bool {
	var out okResp
	return c.query(ctx, method, path, nil, &out) && out.OK
}

// query 执行只读调用：失败只记日志并返回 false，传输层故障会把连接标记为断开
func (c *Client) query(ctx context.Context, method, path string, params url.Values, out any) bool {
	err := c.do(ctx, method, path, params, nil, out)
	if err == nil {
		return true
	}
	if !errors.Is(err, errNoData) && ctx.Err() == nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			c.connected.Store(false)
		}
		log.Debug().Err(err).Str("path", path).Msg("mt5 bridge call failed")
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNoData
	case resp.StatusCode != http.StatusOK:
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("%w: http %d: %s", ErrBridge, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("%w: http %d: %s", ErrBridge, resp.StatusCode, string(raw))
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrBridge, path, err)
	}
	return nil
}

var _ port.Session = (*Client)(nil)
