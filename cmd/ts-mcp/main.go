// Command ts-mcp exposes edge diagnostics as MCP tools: sign a target URL
// the way the click/asset proxies would, verify a previously issued token,
// and run the configured auction against a synthetic ad request. Tool
// registration scaffold (mcp.NewServer/mcp.AddTool, stdio+logging
// transport, stderr-only zap logger) is kept from the teacher's
// cmd/mcp-server/main.go; the AdCP media-buy tools it exposed (get_products,
// create_media_buy) have no equivalent here since this edge has no
// campaign/line-item inventory to broker.
package main

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/trusted-server/edge/internal/auction"
	"github.com/trusted-server/edge/internal/auction/providers"
	"github.com/trusted-server/edge/internal/config"
	"github.com/trusted-server/edge/internal/db"
	"github.com/trusted-server/edge/internal/observability"
	"github.com/trusted-server/edge/internal/settingsstore"
	"github.com/trusted-server/edge/internal/signer"
)

type SignURLInput struct {
	Target     string `json:"target"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

type SignURLOutput struct {
	SignedQuery string `json:"signed_query"`
}

type VerifyTokenInput struct {
	SignedQuery string `json:"signed_query"`
}

type VerifyTokenOutput struct {
	Target string `json:"target"`
	Valid  bool   `json:"valid"`
	Error  string `json:"error,omitempty"`
}

type SimulateAuctionInput struct {
	ImpID     string `json:"impid"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	UserAgent string `json:"user_agent,omitempty"`
}

type BidOut struct {
	Provider string  `json:"provider"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency,omitempty"`
}

type SimulateAuctionOutput struct {
	Winner   *BidOut  `json:"winner,omitempty"`
	AllBids  []BidOut `json:"all_bids"`
	Mediated bool     `json:"mediated"`
}

// DiagServer holds the dependencies the diagnostic tools share.
type DiagServer struct {
	settings     *config.Settings
	signer       *signer.Signer
	orchestrator *auction.Orchestrator
	logger       *zap.Logger
}

func (s *DiagServer) SignURL(ctx context.Context, req *mcp.CallToolRequest, input SignURLInput) (*mcp.CallToolResult, SignURLOutput, error) {
	if input.Target == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "target is required"}},
		}, SignURLOutput{}, nil
	}
	ttl := time.Duration(input.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = s.settings.Proxy.TokenTTL
	}
	values, err := s.signer.Sign(input.Target, ttl, nil)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("sign failed: %v", err)}},
		}, SignURLOutput{}, nil
	}
	return nil, SignURLOutput{SignedQuery: values.Encode()}, nil
}

func (s *DiagServer) VerifyToken(ctx context.Context, req *mcp.CallToolRequest, input VerifyTokenInput) (*mcp.CallToolResult, VerifyTokenOutput, error) {
	values, err := url.ParseQuery(input.SignedQuery)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("invalid query: %v", err)}},
		}, VerifyTokenOutput{}, nil
	}
	target, err := s.signer.Verify(values)
	if err != nil {
		return nil, VerifyTokenOutput{Valid: false, Error: err.Error()}, nil
	}
	return nil, VerifyTokenOutput{Target: target, Valid: true}, nil
}

func (s *DiagServer) SimulateAuction(ctx context.Context, req *mcp.CallToolRequest, input SimulateAuctionInput) (*mcp.CallToolResult, SimulateAuctionOutput, error) {
	if input.ImpID == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "impid is required"}},
		}, SimulateAuctionOutput{}, nil
	}
	result := s.orchestrator.Run(ctx, auction.AdRequest{
		ImpID:     input.ImpID,
		Width:     input.Width,
		Height:    input.Height,
		UserAgent: input.UserAgent,
	})

	out := SimulateAuctionOutput{Mediated: result.Mediated, AllBids: make([]BidOut, 0, len(result.AllBids))}
	for _, b := range result.AllBids {
		out.AllBids = append(out.AllBids, BidOut{Provider: b.Provider, Price: b.Price, Currency: b.Currency})
	}
	if result.Winner != nil {
		out.Winner = &BidOut{Provider: result.Winner.Provider, Price: result.Winner.Price, Currency: result.Winner.Currency}
	}
	return nil, out, nil
}

func main() {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.NameKey = "logger"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("trusted-server-mcp").With(zap.String("service", "trusted-server-mcp"))
	logger.Info("starting edge diagnostics MCP server")

	edgeCfg := config.Load()
	store, err := db.InitRedis(edgeCfg.RedisAddr)
	if err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	defer store.Close()

	settings, err := settingsstore.Load(edgeCfg, store)
	if err != nil {
		logger.Fatal("failed to load settings", zap.Error(err))
	}

	sign := signer.New(settings.Signing, time.Now)

	var provs []auction.Provider
	for _, id := range settings.Auction.Providers {
		in, ok := settings.Integrations[id]
		if !ok || !in.Enabled {
			continue
		}
		if in.Mock {
			provs = append(provs, &providers.MockProvider{Name: id, Price: in.MockPrice})
			continue
		}
		provs = append(provs, providers.NewHTTPProvider(id, in.Endpoint, nil))
	}
	if len(provs) == 0 {
		provs = []auction.Provider{&providers.MockProvider{Name: "prebid", Price: 0.50}}
	}
	orchestrator := auction.New(provs, nil, settings.Auction, logger, observability.NewNoOpRegistry())

	diag := &DiagServer{settings: settings, signer: sign, orchestrator: orchestrator, logger: logger}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "trusted-server",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sign_url",
		Description: "Sign a target URL the way the edge's click/asset proxies would",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"target":      map[string]interface{}{"type": "string", "description": "Absolute target URL to sign"},
				"ttl_seconds": map[string]interface{}{"type": "integer", "description": "Token lifetime in seconds (optional, defaults to proxy.token_ttl_seconds)"},
			},
			"required": []string{"target"},
		},
	}, diag.SignURL)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "verify_token",
		Description: "Verify a previously signed first-party query string",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"signed_query": map[string]interface{}{"type": "string", "description": "The tsurl/tsexp/tskid/tstoken query string to verify"},
			},
			"required": []string{"signed_query"},
		},
	}, diag.VerifyToken)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "simulate_auction",
		Description: "Run the configured auction against a synthetic ad request",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"impid":      map[string]interface{}{"type": "string", "description": "Impression id to auction"},
				"width":      map[string]interface{}{"type": "integer"},
				"height":     map[string]interface{}{"type": "integer"},
				"user_agent": map[string]interface{}{"type": "string"},
			},
			"required": []string{"impid"},
		},
	}, diag.SimulateAuction)

	stdioTransport := &mcp.StdioTransport{}
	var logBuffer bytes.Buffer
	loggingTransport := &mcp.LoggingTransport{
		Transport: stdioTransport,
		Writer:    &logBuffer,
	}

	logger.Info("MCP server running via stdio")
	if err := server.Run(context.Background(), loggingTransport); err != nil {
		logger.Fatal("server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
