package trade_test

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/metrics"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/trade"
)

func TestWSHub_FiltersByMarket(t *testing.T) {
	hub := trade.NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	r := chi.NewRouter()
	r.Get("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?market=" + url.QueryEscape("IDX/USD[LONG-SHORT]")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.WebSocketClients) == 1
	}, 2*time.Second, 10*time.Millisecond, "client was not registered")

	hub.Broadcast(trade.WSMessage{Type: trade.MessageAction, Market: "BTC/USD[WBTC-USDC]"})
	hub.Broadcast(trade.WSMessage{Type: trade.MessageAction, Market: "IDX/USD[LONG-SHORT]", Record: &model.ActionRecord{ID: "a1"}})
	hub.Broadcast(trade.WSMessage{Type: trade.MessagePriceUpdated, Token: "IDX"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var first, second trade.WSMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	require.Equal(t, "IDX/USD[LONG-SHORT]", first.Market)
	require.NotNil(t, first.Record)
	require.Equal(t, "a1", first.Record.ID)
	require.Equal(t, trade.MessagePriceUpdated, second.Type)
	require.Equal(t, "IDX", second.Token)

	cancel()
	require.NoError(t, <-done)
	require.Zero(t, testutil.ToFloat64(metrics.WebSocketClients), "clients gauge after shutdown")
}
