package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// End-to-end exerciser for a running server: issues a demo token, opens and
// closes spot trades, places a short binary contract and polls the overview
// until it settles, then prints a run report.

const (
	defaultBaseURL = "http://localhost:8080/api/v1"
	apiKey         = "demo-api-key"
	apiSecret      = "demo-api-secret"
)

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) do(method, path string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	if !envelope.Success {
		if envelope.Error != nil {
			return fmt.Errorf("%s %s: %s (%s)", method, path, envelope.Error.Message, envelope.Error.Code)
		}
		return fmt.Errorf("%s %s: request failed", method, path)
	}
	if out != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

func (c *client) authenticate(userID int64) error {
	var result struct {
		Token string `json:"jwt_token"`
	}
	err := c.do("POST", "/auth/token", map[string]interface{}{
		"api_key":    apiKey,
		"api_secret": apiSecret,
		"user_id":    userID,
	}, &result)
	if err != nil {
		return err
	}
	c.token = result.Token
	return nil
}

type balance struct {
	Available float64 `json:"available"`
	Locked    float64 `json:"locked"`
}

type spotOverview struct {
	Balance   balance `json:"balance"`
	MarkPrice float64 `json:"mark_price"`
	Stats     struct {
		TotalTrades      int     `json:"total_trades"`
		TotalRealizedPnl float64 `json:"total_realized_pnl"`
	} `json:"stats"`
}

type binaryOverview struct {
	Balance       balance `json:"balance"`
	OpenContracts []struct {
		TradeID         string `json:"trade_id"`
		SecondsToExpiry int64  `json:"seconds_to_expiry"`
	} `json:"open_contracts"`
	Stats struct {
		Total int     `json:"total"`
		Win   int     `json:"win"`
		Lose  int     `json:"lose"`
		Push  int     `json:"push"`
		Net   float64 `json:"net"`
	} `json:"stats"`
}

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zlog.Logger = zerolog.New(output).With().Timestamp().Logger()

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	c := &client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}

	if err := c.authenticate(1); err != nil {
		zlog.Fatal().Err(err).Msg("authentication failed")
	}
	zlog.Info().Msg("authenticated as user 1")

	// Market state
	var state struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	if err := c.do("GET", "/market/state", nil, &state); err != nil {
		zlog.Fatal().Err(err).Msg("failed to read market state")
	}
	zlog.Info().Str("symbol", state.Symbol).Float64("price", state.Price).Msg("market state")

	// Spot round trip
	var opened struct {
		Trade struct {
			TradeID    string  `json:"trade_id"`
			EntryPrice float64 `json:"entry_price"`
		} `json:"trade"`
	}
	err := c.do("POST", "/spot/trades", map[string]interface{}{
		"side":   "buy",
		"amount": 1000,
	}, &opened)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to open spot trade")
	}
	zlog.Info().
		Str("trade_id", opened.Trade.TradeID).
		Float64("entry_price", opened.Trade.EntryPrice).
		Msg("spot trade opened")

	// Let the walk move before closing
	time.Sleep(3 * time.Second)

	var closed struct {
		RealizedPnl float64 `json:"realized_pnl"`
	}
	err = c.do("POST", "/spot/trades/"+opened.Trade.TradeID+"/close", nil, &closed)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to close spot trade")
	}
	zlog.Info().Float64("realized_pnl", closed.RealizedPnl).Msg("spot trade closed")

	// Binary contract with the shortest allowed duration
	var placed struct {
		Trade struct {
			TradeID         string  `json:"trade_id"`
			EntryPrice      float64 `json:"entry_price"`
			ExpiryTimestamp int64   `json:"expiry_timestamp"`
		} `json:"trade"`
	}
	err = c.do("POST", "/binary/trades", map[string]interface{}{
		"direction": "call",
		"stake":     25,
		"duration":  30,
	}, &placed)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to place binary trade")
	}
	zlog.Info().
		Str("trade_id", placed.Trade.TradeID).
		Float64("entry_price", placed.Trade.EntryPrice).
		Msg("binary trade placed, waiting for expiry")

	// Poll the overview; the read itself triggers settlement once expired
	var bov binaryOverview
	for {
		if err := c.do("GET", "/binary/overview", nil, &bov); err != nil {
			zlog.Fatal().Err(err).Msg("failed to read binary overview")
		}
		if len(bov.OpenContracts) == 0 {
			break
		}
		zlog.Info().
			Int64("seconds_to_expiry", bov.OpenContracts[0].SecondsToExpiry).
			Msg("contract still open")
		time.Sleep(5 * time.Second)
	}

	var sov spotOverview
	if err := c.do("GET", "/spot/overview", nil, &sov); err != nil {
		zlog.Fatal().Err(err).Msg("failed to read spot overview")
	}

	zlog.Info().
		Float64("available", bov.Balance.Available).
		Float64("locked", bov.Balance.Locked).
		Int("binary_total", bov.Stats.Total).
		Int("binary_win", bov.Stats.Win).
		Int("binary_lose", bov.Stats.Lose).
		Int("binary_push", bov.Stats.Push).
		Float64("binary_net", bov.Stats.Net).
		Int("spot_trades", sov.Stats.TotalTrades).
		Float64("spot_realized_pnl", sov.Stats.TotalRealizedPnl).
		Msg("simulation complete")
}
