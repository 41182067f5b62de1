package main

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ligun0805/token-launchpad/internal/amount"
	"github.com/ligun0805/token-launchpad/internal/config"
	"github.com/ligun0805/token-launchpad/internal/launch"
)

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func printConfig(st config.Settings) {
	fmt.Println("=== CONFIG (.env) ===")
	fmt.Println("RPC_URL                :", orNone(st.RPCURL))
	fmt.Println("CHAIN_ID               :", orNone(st.ChainID))
	fmt.Println("FACTORY_ADDRESS        :", orNone(st.FactoryAddress))
	fmt.Println("DEX_FACTORY_ADDRESS    :", orNone(st.DexFactoryAddress))
	fmt.Println("WRAPPED_NATIVE_ADDRESS :", orNone(st.WrappedNativeAddress))
	fmt.Println("AUTO_APPROVE_SPENDER   :", orNone(st.AutoApproveSpender))
	fmt.Println("PLATFORM_PRIVATE_KEY   :", maskHex(st.PlatformPrivateKey))
	fmt.Println("DATABASE_URL           :", maskHex(st.DatabaseURL))
	fmt.Println("Receipt timeout        :", st.ReceiptTimeout)
	fmt.Println("Confirmations          :", st.Confirmations)
	fmt.Println("Settlement timeout     :", st.SettlementTimeout)
	fmt.Println("Gas buffer (%)         :", st.GasBufferPct)
	fmt.Println("LP creation fee        :", st.LPCreationFee)
	tiers := make([]string, 0, len(st.TierFees))
	for t := range st.TierFees {
		tiers = append(tiers, t)
	}
	sort.Strings(tiers)
	for _, t := range tiers {
		fmt.Printf("Tier fee %-14s: %s\n", t, st.TierFees[t])
	}
	if err := st.Validate(); err != nil {
		fmt.Println("[!] invalid:", err)
	}
	fmt.Println("=====================")
}

func printQuote(q *launch.FeeQuote) {
	fmt.Println("Tier           :", q.Tier)
	fmt.Printf("Tier fee       : %s (%s)\n", amount.FormatNative(q.TierFee), q.Source)
	fmt.Println("LP creation fee:", amount.FormatNative(q.LPCreationFee))
	fmt.Println("Pool funding   :", amount.FormatNative(q.PoolFunding))
	fmt.Printf("Total value    : %s (%s wei)\n", amount.FormatNative(q.Total), q.Total)
}

func printPrepared(tx *launch.PreparedTransaction) {
	fmt.Println("to      :", tx.To.Hex())
	fmt.Println("method  :", tx.Method)
	fmt.Printf("value   : %s (%s wei)\n", amount.FormatNative(tx.Value), tx.Value)
	fmt.Println("gas     :", tx.Gas)
	fmt.Println("chainId :", tx.ChainID)
	fmt.Printf("tierFee : %s (%s)\n", amount.FormatNative(tx.TierFee), tx.TierFeeSource)
	fmt.Println("data    :", hexutil.Encode(tx.Data))
}

func printResult(res *launch.Result) {
	fmt.Println("token    :", res.TokenAddress.Hex())
	fmt.Println("tx       :", res.TxHash.Hex())
	fmt.Println("block    :", res.BlockNumber)
	fmt.Println("strategy :", res.Strategy)
	fmt.Println("pair     :", res.Pair.String())
	for _, o := range res.Settlement {
		line := fmt.Sprintf("  %-13s %s", o.Step, o.Status)
		if o.TxHash != "" {
			line += " " + o.TxHash
		}
		if o.Reason != "" {
			line += " (" + o.Reason + ")"
		}
		if o.Error != "" {
			line += " error: " + o.Error
		}
		fmt.Println(line)
	}
	for _, w := range res.Warnings {
		fmt.Println("[!] warning:", w.String())
	}
	if res.Record != nil {
		fmt.Println("persisted: yes")
	} else {
		fmt.Println("persisted: no")
	}
}
