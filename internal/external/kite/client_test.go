package kite

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/pkg/config"
	"github.com/wonny/optrader/pkg/logger"
)

var ist = time.FixedZone("IST", 19800)

// fakeVenue is a minimal Kite web API
type fakeVenue struct {
	logins   int32
	token    string
	lastForm map[string]string
	mux      *http.ServeMux
}

func newFakeVenue(t *testing.T) (*fakeVenue, *httptest.Server) {
	v := &fakeVenue{token: "tok-1", lastForm: map[string]string{}}
	v.mux = http.NewServeMux()

	v.mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"status":"error","error_type":"InputException","message":"Invalid password"}`))
			return
		}
		w.Write([]byte(`{"status":"success","data":{"user_id":"AB1234","request_id":"req-9"}}`))
	})
	v.mux.HandleFunc("/twofa", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "req-9", r.PostForm.Get("request_id"))
		assert.Len(t, r.PostForm.Get("twofa_value"), 6)
		atomic.AddInt32(&v.logins, 1)
		http.SetCookie(w, &http.Cookie{Name: "enctoken", Value: v.token})
		w.Write([]byte(`{"status":"success","data":{}}`))
	})
	v.mux.HandleFunc("/orders/regular", func(w http.ResponseWriter, r *http.Request) {
		if !v.authorized(w, r) {
			return
		}
		require.NoError(t, r.ParseForm())
		for k := range r.PostForm {
			v.lastForm[k] = r.PostForm.Get(k)
		}
		w.Write([]byte(`{"status":"success","data":{"order_id":"220101000000001"}}`))
	})
	v.mux.HandleFunc("/orders/regular/", func(w http.ResponseWriter, r *http.Request) {
		if !v.authorized(w, r) {
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/orders/regular/")
		require.NoError(t, r.ParseForm())
		for k := range r.PostForm {
			v.lastForm[k] = r.PostForm.Get(k)
		}
		v.lastForm["method"] = r.Method
		w.Write([]byte(`{"status":"success","data":{"order_id":"` + id + `"}}`))
	})
	v.mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		if !v.authorized(w, r) {
			return
		}
		w.Write([]byte(`{"status":"success","data":[
			{"order_id":"1","tradingsymbol":"NIFTY26OCT25000CE","status":"COMPLETE","average_price":101.5,"order_timestamp":"2026-10-15 09:21:03","transaction_type":"SELL"},
			{"order_id":"2","tradingsymbol":"NIFTY26OCT25000CE","status":"TRIGGER PENDING","average_price":0,"order_timestamp":"2026-10-15 09:21:04"}
		]}`))
	})
	v.mux.HandleFunc("/portfolio/positions", func(w http.ResponseWriter, r *http.Request) {
		if !v.authorized(w, r) {
			return
		}
		w.Write([]byte(`{"status":"success","data":{"net":[],"day":[
			{"tradingsymbol":"NIFTY26OCT25000CE","exchange":"NFO","product":"MIS","quantity":-50,"average_price":101.5,"last_price":99}
		]}}`))
	})
	v.mux.HandleFunc("/quote/ltp", func(w http.ResponseWriter, r *http.Request) {
		if !v.authorized(w, r) {
			return
		}
		keys := r.URL.Query()["i"]
		if len(keys) == 1 && keys[0] == "NSE:UNKNOWN" {
			w.Write([]byte(`{"status":"success","data":{}}`))
			return
		}
		w.Write([]byte(`{"status":"success","data":{
			"NSE:NIFTY 50":{"instrument_token":256265,"last_price":18050},
			"NFO:NIFTY26OCT25000CE":{"instrument_token":1001,"last_price":101.25}
		}}`))
	})

	server := httptest.NewServer(v.mux)
	t.Cleanup(server.Close)
	return v, server
}

func (v *fakeVenue) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "enctoken "+v.token {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"status":"error","error_type":"TokenException","message":"Session expired"}`))
		return false
	}
	return true
}

func newTestClient(serverURL string) *Client {
	cfg := config.KiteConfig{
		UserID:            "AB1234",
		Password:          "secret",
		TOTPSecret:        "JBSWY3DPEHPK3PXP",
		AuthURL:           serverURL,
		OMSURL:            serverURL,
		WSURL:             "wss://ws.example",
		InstrumentsURL:    serverURL + "/instruments",
		UserAgent:         "kite3-web",
		RequestsPerSecond: 100,
	}
	return NewClient(cfg, ist, logger.Nop())
}

func TestLoginAndGeneration(t *testing.T) {
	venue, server := newFakeVenue(t)
	client := newTestClient(server.URL)

	assert.Equal(t, uint64(0), client.Generation())

	_, err := client.Orders(context.Background())
	assert.True(t, IsSessionError(err))

	require.NoError(t, client.Login(context.Background()))
	assert.Equal(t, uint64(1), client.Generation())

	// stale generation → no second login
	require.NoError(t, client.Relogin(context.Background(), 0))
	assert.Equal(t, uint64(1), client.Generation())
	assert.Equal(t, int32(1), atomic.LoadInt32(&venue.logins))

	require.NoError(t, client.Relogin(context.Background(), 1))
	assert.Equal(t, uint64(2), client.Generation())
}

func TestLoginRejected(t *testing.T) {
	_, server := newFakeVenue(t)
	client := newTestClient(server.URL)
	client.cfg.Password = "wrong"

	err := client.Login(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "InputException", apiErr.Type)
	assert.False(t, IsSessionError(err))
}

func TestWebSocketURL(t *testing.T) {
	_, server := newFakeVenue(t)
	client := newTestClient(server.URL)

	_, err := client.WebSocketURL(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, client.Login(context.Background()))
	u, err := client.WebSocketURL(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "wss://ws.example/?"))
	assert.Contains(t, u, "enctoken=tok-1")
	assert.Contains(t, u, "user_id=AB1234")
}

func TestPlaceAndModifyOrder(t *testing.T) {
	venue, server := newFakeVenue(t)
	client := newTestClient(server.URL)
	require.NoError(t, client.Login(context.Background()))

	id, err := client.PlaceOrder(context.Background(), contracts.OrderRequest{
		Symbol:       "NIFTY26OCT25000CE",
		Exchange:     "NFO",
		Side:         contracts.SideBuy,
		Quantity:     50,
		OrderType:    contracts.OrderTypeStopLoss,
		Price:        98,
		TriggerPrice: 98,
		Product:      contracts.ProductMIS,
		Tag:          contracts.OrderTag,
	})
	require.NoError(t, err)
	assert.Equal(t, "220101000000001", id)
	assert.Equal(t, "SL", venue.lastForm["order_type"])
	assert.Equal(t, "98", venue.lastForm["trigger_price"])
	assert.Equal(t, "50", venue.lastForm["quantity"])
	assert.Equal(t, "algo_order", venue.lastForm["tag"])

	price := 103.5
	id, err = client.ModifyOrder(context.Background(), contracts.ModifyRequest{
		OrderID:      "42",
		Price:        &price,
		TriggerPrice: &price,
	})
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.Equal(t, http.MethodPut, venue.lastForm["method"])
	assert.Equal(t, "103.5", venue.lastForm["price"])

	id, err = client.CancelOrder(context.Background(), "43")
	require.NoError(t, err)
	assert.Equal(t, "43", id)
	assert.Equal(t, http.MethodDelete, venue.lastForm["method"])
}

func TestOrdersAndPositions(t *testing.T) {
	_, server := newFakeVenue(t)
	client := newTestClient(server.URL)
	require.NoError(t, client.Login(context.Background()))

	orders, err := client.Orders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, contracts.OrderStatusComplete, orders[0].Status)
	assert.Equal(t, 101.5, orders[0].AveragePrice)
	assert.Equal(t, time.Date(2026, 10, 15, 9, 21, 3, 0, ist), orders[0].OrderTimestamp)
	assert.Equal(t, contracts.OrderStatus("TRIGGER PENDING"), orders[1].Status)

	positions, err := client.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, -50, positions[0].Quantity)
	assert.Equal(t, "MIS", positions[0].Product)
}

func TestLTP(t *testing.T) {
	_, server := newFakeVenue(t)
	client := newTestClient(server.URL)
	require.NoError(t, client.Login(context.Background()))

	prices, err := client.LTP(context.Background(), "NSE:NIFTY 50", "NFO:NIFTY26OCT25000CE")
	require.NoError(t, err)
	assert.Equal(t, 18050.0, prices["NSE:NIFTY 50"])
	assert.Equal(t, 101.25, prices["NFO:NIFTY26OCT25000CE"])

	_, err = client.LTP(context.Background(), "NSE:UNKNOWN")
	assert.ErrorIs(t, err, ErrEmptyQuote)
}

func TestTOTP(t *testing.T) {
	// RFC 6238 SHA1 vector: secret "12345678901234567890", T=59 → 94287082 (8 digits)
	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	code, err := TOTP(secret, time.Unix(59, 0))
	require.NoError(t, err)
	assert.Equal(t, "287082", code)

	code, err = TOTP(secret, time.Unix(1111111109, 0))
	require.NoError(t, err)
	assert.Equal(t, "081804", code)

	_, err = TOTP("", time.Now())
	assert.Error(t, err)
	_, err = TOTP("!!!", time.Now())
	assert.Error(t, err)
}

func TestParseInstruments(t *testing.T) {
	csvData := `instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange
12345,48,NIFTY26OCT18100CE,"NIFTY",0,2026-10-20,18100,0.05,50,CE,NFO-OPT,NFO
12346,49,NIFTY26OCT18000PE,"NIFTY",0,2026-10-20,18000,0.05,50,PE,NFO-OPT,NFO
256265,1001,NIFTY 50,NIFTY 50,0,,0,0,0,EQ,INDICES,NSE
bad,1,X,X,0,,0,0,0,EQ,NSE,NSE
`
	rows, err := ParseInstruments(strings.NewReader(csvData), ist)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, uint32(12345), rows[0].InstrumentToken)
	assert.Equal(t, 18100.0, rows[0].Strike)
	assert.Equal(t, 50, rows[0].LotSize)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, ist), rows[0].Expiry)
	assert.Equal(t, "NFO:NIFTY26OCT18100CE", rows[0].QuoteKey())
	assert.True(t, rows[2].Expiry.IsZero())

	_, err = ParseInstruments(strings.NewReader("a,b\n1,2\n"), ist)
	assert.Error(t, err)
}

func TestInstrumentsDownload(t *testing.T) {
	_, server := newFakeVenue(t)
	var hits int32
	// registered on the fake venue mux before any request is served
	venueMux := http.NewServeMux()
	venueMux.HandleFunc("/instruments/NFO", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("instrument_token,tradingsymbol,name,expiry,strike,lot_size,instrument_type,segment,exchange\n1,X26OCT100CE,X,2026-10-20,100,25,CE,NFO-OPT,NFO\n"))
	})
	dump := httptest.NewServer(venueMux)
	defer dump.Close()

	client := newTestClient(server.URL)
	client.cfg.InstrumentsURL = dump.URL + "/instruments"

	rows, err := client.Instruments(context.Background(), "NFO")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 25, rows[0].LotSize)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

// ============================================================================
// Ticker frames
// ============================================================================

func packet(token uint32, price int32, size int, ts uint32, tsAt int) []byte {
	p := make([]byte, size)
	binary.BigEndian.PutUint32(p[0:4], token)
	binary.BigEndian.PutUint32(p[4:8], uint32(price))
	if tsAt > 0 {
		binary.BigEndian.PutUint32(p[tsAt:tsAt+4], ts)
	}
	return p
}

func frame(packets ...[]byte) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, uint16(len(packets)))
	for _, p := range packets {
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(p)))
		out = append(out, l[:]...)
		out = append(out, p...)
	}
	return out
}

func TestDecodeTicks(t *testing.T) {
	d := NewDecoder(ist)
	ts := uint32(time.Date(2026, 10, 15, 9, 30, 0, 0, ist).Unix())

	ticks, err := d.DecodeTicks(frame(
		packet(12545, 10125, packetFull, ts, 44),
		packet(256265, 1805000, packetIndexFull, ts, 28),
		packet(412675, 835000000, packetLTP, 0, 0), // token&0xff == 3 (CDS)
	))
	require.NoError(t, err)
	require.Len(t, ticks, 3)

	assert.Equal(t, uint32(12545), ticks[0].InstrumentToken)
	assert.Equal(t, 101.25, ticks[0].LastPrice)
	assert.Equal(t, int64(ts), ticks[0].LastTradeTime.Unix())

	assert.Equal(t, 18050.0, ticks[1].LastPrice)
	assert.Equal(t, int64(ts), ticks[1].LastTradeTime.Unix())

	assert.InDelta(t, 83.5, ticks[2].LastPrice, 1e-9)
	assert.False(t, ticks[2].LastTradeTime.IsZero())
}

func TestDecodeTicksHeartbeatAndTruncated(t *testing.T) {
	d := NewDecoder(ist)

	ticks, err := d.DecodeTicks([]byte{0})
	require.NoError(t, err)
	assert.Empty(t, ticks)

	f := frame(packet(12545, 10125, packetLTP, 0, 0))
	_, err = d.DecodeTicks(f[:len(f)-3])
	assert.Error(t, err)
}

func TestDecodeOrderUpdate(t *testing.T) {
	d := NewDecoder(ist)

	tests := []struct {
		name   string
		frame  string
		ok     bool
		status contracts.OrderStatus
	}{
		{
			name:   "wrapped",
			frame:  `{"type":"order","data":{"order_id":"7","tradingsymbol":"NIFTY26OCT25000CE","status":"COMPLETE","average_price":99.5,"order_timestamp":"2026-10-15 10:00:00"}}`,
			ok:     true,
			status: contracts.OrderStatusComplete,
		},
		{
			name:   "bare",
			frame:  `{"order_id":"8","tradingsymbol":"NIFTY26OCT25000PE","status":"REJECTED","status_message":"margin"}`,
			ok:     true,
			status: contracts.OrderStatusRejected,
		},
		{name: "message", frame: `{"type":"message","data":"hello"}`},
		{name: "garbage", frame: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, ok := d.DecodeOrderUpdate([]byte(tt.frame))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.status, u.Status)
			}
		})
	}

	u, _ := d.DecodeOrderUpdate([]byte(tests[0].frame))
	assert.Equal(t, time.Date(2026, 10, 15, 10, 0, 0, 0, ist), u.OrderTimestamp)
	assert.Equal(t, 99.5, u.AveragePrice)
}
