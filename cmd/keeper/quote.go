package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"rangeKeeper/internal/chain"
	"rangeKeeper/internal/chainpool"
	"rangeKeeper/internal/fixedpoint"
)

type quoteResult struct {
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int32  `json:"tick"`
	Split0       string `json:"split0"`
	Split1       string `json:"split1"`
	Liquidity    string `json:"liquidity"`
	Used0        string `json:"used0"`
	Used1        string `json:"used1"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	tickLower, _ := cmd.Flags().GetInt32("tick-lower")
	tickUpper, _ := cmd.Flags().GetInt32("tick-upper")
	if tickLower >= tickUpper {
		return fmt.Errorf("tick-lower must be below tick-upper")
	}

	amount0, err := parseAmount(cmd, "amount0")
	if err != nil {
		return err
	}
	amount1, err := parseAmount(cmd, "amount1")
	if err != nil {
		return err
	}

	sqrtCurrent, err := quoteSqrtPrice(cmd)
	if err != nil {
		return err
	}
	tick, err := fixedpoint.TickFromSqrtPrice(sqrtCurrent)
	if err != nil {
		return err
	}

	sqrtLower, err := fixedpoint.SqrtPriceFromTick(tickLower)
	if err != nil {
		return err
	}
	sqrtUpper, err := fixedpoint.SqrtPriceFromTick(tickUpper)
	if err != nil {
		return err
	}

	// Express the whole deposit in token0 terms, then split it the way
	// the rebalancer targets.
	amount1In0, err := fixedpoint.Token1To0(sqrtCurrent, amount1)
	if err != nil {
		return err
	}
	total := new(big.Int).Add(amount0, amount1In0)

	split0, split1In0, err := fixedpoint.SplitByRange(total, sqrtCurrent, sqrtLower, sqrtUpper)
	if err != nil {
		return err
	}
	split1, err := fixedpoint.Token0To1(sqrtCurrent, split1In0)
	if err != nil {
		return err
	}

	liquidity, err := fixedpoint.LiquidityForAmounts(sqrtCurrent, sqrtLower, sqrtUpper, split0, split1)
	if err != nil {
		return err
	}
	used0, used1, err := fixedpoint.AmountsForLiquidity(sqrtCurrent, sqrtLower, sqrtUpper, liquidity)
	if err != nil {
		return err
	}

	result := quoteResult{
		SqrtPriceX96: sqrtCurrent.String(),
		Tick:         tick,
		Split0:       split0.String(),
		Split1:       split1.String(),
		Liquidity:    liquidity.String(),
		Used0:        used0.String(),
		Used1:        used1.String(),
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// quoteSqrtPrice resolves the current price from --sqrt-price, or reads
// slot0 from the live pool when --rpc and --pool are set.
func quoteSqrtPrice(cmd *cobra.Command) (*big.Int, error) {
	raw, _ := cmd.Flags().GetString("sqrt-price")
	if raw != "" {
		value, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("invalid sqrt-price %q", raw)
		}
		return value, nil
	}

	rpcURL, _ := cmd.Flags().GetString("rpc")
	poolAddr, _ := cmd.Flags().GetString("pool")
	if rpcURL == "" || poolAddr == "" {
		return nil, fmt.Errorf("either --sqrt-price or both --rpc and --pool are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	reader := chainpool.NewReader(chainClient)
	ref, err := reader.FetchRef(ctx, common.HexToAddress(poolAddr))
	if err != nil {
		return nil, fmt.Errorf("fetch pool: %w", err)
	}
	sqrtPrice, _, err := reader.Slot0(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("read slot0: %w", err)
	}
	return sqrtPrice, nil
}

func parseAmount(cmd *cobra.Command, name string) (*big.Int, error) {
	raw, _ := cmd.Flags().GetString(name)
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return value, nil
}
