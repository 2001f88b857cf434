/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Coverage Engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Open the SQLite receipt store
  3. Build the ledger gateway: in-memory simulation, or JSON-RPC against
     a node when -rpc-url is set
  4. Start the wallet manager and bind the session
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (each overridable via environment):
  -port       HTTP server port                (PORT, default: 8080)
  -db         SQLite database path            (DB_PATH, default: coverage.db)
              Use ":memory:" for in-memory database
  -rpc-url    JSON-RPC node endpoint          (RPC_URL; empty = dev mode)
  -contract   Insurance contract address      (CONTRACT_ADDRESS)
  -chain-id   Required chain id               (CHAIN_ID, default: 11155111)

DEV MODE:
  Without -rpc-url the server runs against a seeded in-memory contract
  simulation and connects a session automatically. Every read and write
  works; nothing persists past the process except receipts.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the wallet manager and database
  4. Exit

EXAMPLES:
  # Dev mode with in-memory everything
  ./server -db=":memory:"

  # Against a Sepolia node
  ./server -rpc-url="http://localhost:8545" -contract="0x5FbD..." -chain-id=11155111

SEE ALSO:
  - api/server.go: Router configuration
  - wallet/manager.go: The session the server binds at startup
  - ledger/rpc.go: The node-backed gateway
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/coverage-engine/api"
	"github.com/warp/coverage-engine/insurance"
	"github.com/warp/coverage-engine/ledger"
	"github.com/warp/coverage-engine/store/sqlite"
	"github.com/warp/coverage-engine/wallet"
)

func main() {
	// .env is optional; flags and real environment win over it.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "coverage.db"), "SQLite database path")
	rpcURL := flag.String("rpc-url", envStr("RPC_URL", ""), "JSON-RPC node endpoint (empty for dev mode)")
	contract := flag.String("contract", envStr("CONTRACT_ADDRESS", ""), "insurance contract address")
	chainID := flag.Uint64("chain-id", uint64(envInt("CHAIN_ID", 11155111)), "required chain id")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	reader, manager, err := buildGateway(*rpcURL, *contract, *chainID)
	if err != nil {
		log.Fatalf("Failed to initialize ledger gateway: %v", err)
	}
	defer manager.Close()

	if err := manager.Connect(context.Background()); err != nil {
		log.Printf("Warning: session not connected, writes disabled until /api/session/connect succeeds: %v", err)
	}

	handler := api.NewHandler(reader, manager, store)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// buildGateway wires the read path and wallet manager for either mode.
func buildGateway(rpcURL, contract string, chainID uint64) (ledger.Reader, *wallet.Manager, error) {
	required := wallet.ChainParams{
		ChainID:          chainID,
		Name:             fmt.Sprintf("chain %d", chainID),
		CurrencySymbol:   "ETH",
		CurrencyDecimals: 18,
	}

	if rpcURL == "" {
		// Dev mode: seeded contract simulation with a fixed local account.
		account := insurance.Address("0x00000000000000000000000000000000000dbeef")
		mem := ledger.NewMemory(account, ledger.SeedPlans())
		bridge := wallet.NewMemoryBridge(wallet.MemoryBridgeConfig{
			Accounts: []insurance.Address{account},
			ChainID:  chainID,
		})
		manager, err := wallet.NewManager(wallet.Config{
			Bridge:        bridge,
			RequiredChain: required,
			NewGateway: func(insurance.Address, uint64) ledger.Gateway {
				return mem
			},
		})
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Dev mode: in-memory ledger with %d seeded plans", len(ledger.SeedPlans()))
		return mem, manager, nil
	}

	if contract == "" {
		return nil, nil, fmt.Errorf("contract address required when -rpc-url is set")
	}
	if _, err := insurance.ParseAddress(contract); err != nil {
		return nil, nil, fmt.Errorf("contract address: %w", err)
	}

	client, err := ledger.NewClient(ledger.ClientConfig{URL: rpcURL})
	if err != nil {
		return nil, nil, err
	}

	// Reads go through an unbound contract handle; writes go through the
	// session-bound one the factory builds on connect.
	reader := ledger.NewContract(client, contract, "")
	manager, err := wallet.NewManager(wallet.Config{
		Bridge:        wallet.NewNodeBridge(client),
		RequiredChain: required,
		NewGateway: func(account insurance.Address, _ uint64) ledger.Gateway {
			return ledger.NewContract(client, contract, account)
		},
	})
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Ledger gateway: %s (contract %s)", rpcURL, contract)
	return reader, manager, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
