// cashtx CLI - Bitcoin Cash transaction decoder and signer
//
// This CLI exposes the cashtx library on the command line for decoding,
// signing, and inspecting raw transactions, including ones carrying
// CashToken prefixes.
//
// Example usage:
//   # Decode a raw transaction
//   cashtx decode <hex>
//
//   # Sign with keys from a context file
//   cashtx sign <hex> --context signing.yaml
//
//   # Compute the txid of a fully signed transaction
//   cashtx txid <hex>
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"gopkg.in/yaml.v3"

	"github.com/suffix-labs/cashtx/pkg/api"
	"github.com/suffix-labs/cashtx/pkg/keys"
	"github.com/suffix-labs/cashtx/pkg/prevout"
	"github.com/suffix-labs/cashtx/pkg/signer"
	"github.com/suffix-labs/cashtx/pkg/tx"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "decode":
		cmdDecode()
	case "sign":
		cmdSign()
	case "merge":
		cmdMerge()
	case "txid":
		cmdTxid()
	case "sighash":
		cmdSighash()
	case "estimate":
		cmdEstimate()
	case "version":
		cmdVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`cashtx - Bitcoin Cash transaction decoder and signer

Usage:
  cashtx <command> [options]

Commands:
  decode <hex>                       Decode a raw transaction
  sign <hex> --context <file.yaml>   Sign with keys from a context file
  merge <hex> <sig-hex>...           Merge external signatures, one per input
        [--context <file.yaml>]      (prevout values from a context file)
  txid <hex>                         Compute the transaction ID
  sighash <hex> <input-index>        Compute an input's signature digest
  estimate <hex> [--schnorr]         Estimate the fully signed size
  version                            Show version information
  help                               Show this help message

The signing context file is YAML:

  keys:
    - <WIF private key>
  schnorr: false
  prevouts:
    - txid: <funding txid, display order>
      vout: 0
      value: 100000

For more information, see: https://github.com/suffix-labs/cashtx`)
}

func cmdVersion() {
	fmt.Println("cashtx v0.1.0")
	fmt.Println("Bitcoin Cash transaction library with CashToken support")
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireArg(n int, usage string) string {
	if len(os.Args) <= n {
		fatalf("Error: missing argument\nUsage: %s", usage)
	}
	return os.Args[n]
}

func cmdDecode() {
	rawHex := requireArg(2, "cashtx decode <hex>")

	summary, err := api.DecodeTransaction(rawHex)
	if err != nil {
		fatalf("Failed to decode transaction: %v", err)
	}

	fmt.Printf("Version:  %d\n", summary.Version)
	fmt.Printf("LockTime: %d\n", summary.LockTime)
	fmt.Printf("Complete: %v\n", summary.Complete)
	if summary.Txid != "" {
		fmt.Printf("Txid:     %s\n", summary.Txid)
	}
	fmt.Printf("\nInputs: %d\n", len(summary.Inputs))
	for i, in := range summary.Inputs {
		fmt.Printf("  %d: %s:%d (%s, %d/%d sigs", i, in.PrevoutHash, in.PrevoutN, in.Type, in.NumHave, in.NumSig)
		if in.Value != nil {
			fmt.Printf(", %d sat", *in.Value)
		}
		if in.HasToken {
			fmt.Print(", token")
		}
		fmt.Println(")")
	}
	fmt.Printf("\nOutputs: %d\n", len(summary.Outputs))
	for i, out := range summary.Outputs {
		fmt.Printf("  %d: %d sat", i, out.Value)
		if out.Address != "" {
			fmt.Printf(" -> %s", out.Address)
		}
		if out.HasToken {
			fmt.Print(" (token)")
		}
		fmt.Println()
	}
}

// signingContext is the YAML file handed to the sign command.
type signingContext struct {
	Keys     []string `yaml:"keys"`
	Schnorr  bool     `yaml:"schnorr"`
	Prevouts []struct {
		Txid   string `yaml:"txid"`
		Vout   uint32 `yaml:"vout"`
		Value  uint64 `yaml:"value"`
		Script string `yaml:"script"`
	} `yaml:"prevouts"`
}

func loadSigningContext(path string, requireKeys bool) (*signingContext, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ctx signingContext
	if err := yaml.Unmarshal(raw, &ctx); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if requireKeys && len(ctx.Keys) == 0 {
		return nil, fmt.Errorf("%s lists no keys", path)
	}
	return &ctx, nil
}

func (c *signingContext) prevoutValues() []api.PrevoutValue {
	vals := make([]api.PrevoutValue, 0, len(c.Prevouts))
	for _, p := range c.Prevouts {
		vals = append(vals, api.PrevoutValue{Txid: p.Txid, Vout: p.Vout, Value: p.Value})
	}
	return vals
}

func cmdSign() {
	rawHex := requireArg(2, "cashtx sign <hex> --context <file.yaml>")

	contextPath := ""
	for i := 3; i < len(os.Args); i++ {
		switch os.Args[i] {
		case "--context":
			i++
			if i >= len(os.Args) {
				fatalf("Error: --context requires a file path")
			}
			contextPath = os.Args[i]
		default:
			fatalf("Unknown option: %s", os.Args[i])
		}
	}
	if contextPath == "" {
		fatalf("Error: --context is required\nUsage: cashtx sign <hex> --context <file.yaml>")
	}

	ctx, err := loadSigningContext(contextPath, true)
	if err != nil {
		fatalf("Failed to load signing context: %v", err)
	}

	// Funding values from the context file are applied before signing so
	// the sighash preimages have the value each input spends.
	if len(ctx.Prevouts) > 0 {
		raw, err := hex.DecodeString(rawHex)
		if err != nil {
			fatalf("Invalid transaction hex: %v", err)
		}
		t := tx.FromBytes(raw)

		static := prevout.Static{}
		for _, p := range ctx.Prevouts {
			h, err := chainhash.NewHashFromStr(p.Txid)
			if err != nil {
				fatalf("Invalid prevout txid %q: %v", p.Txid, err)
			}
			rec := &tx.PrevOut{Value: p.Value}
			if p.Script != "" {
				script, err := hex.DecodeString(p.Script)
				if err != nil {
					fatalf("Invalid prevout script for %s:%d: %v", p.Txid, p.Vout, err)
				}
				rec.ScriptPubKey = script
			}
			static[prevout.StaticKey(*h, p.Vout)] = rec
		}
		if err := t.ApplyPrevouts(static); err != nil {
			fatalf("Failed to apply prevouts: %v", err)
		}

		provider := keys.NewMemoryProvider()
		for i, wif := range ctx.Keys {
			if err := provider.AddWIF(wif); err != nil {
				fatalf("Key %d: %v", i, err)
			}
		}
		res, err := signer.New(t, provider, ctx.Schnorr, nil).SignAll()
		if err != nil {
			fatalf("Signing failed: %v", err)
		}
		reportSigning(t, res)
		return
	}

	res, err := api.SignTransaction(rawHex, ctx.Keys, ctx.Schnorr)
	if err != nil {
		fatalf("Signing failed: %v", err)
	}
	fmt.Printf("Signatures added: %d\n", res.SignaturesAdded)
	fmt.Printf("Complete:         %v\n", res.Complete)
	if res.Txid != "" {
		fmt.Printf("Txid:             %s\n", res.Txid)
	}
	for i, msg := range res.InputErrors {
		fmt.Fprintf(os.Stderr, "input %d: %s\n", i, msg)
	}
	fmt.Println()
	fmt.Println(res.RawHex)
}

func reportSigning(t *tx.Transaction, res *signer.Result) {
	raw, err := t.Serialize()
	if err != nil {
		fatalf("Failed to serialize transaction: %v", err)
	}
	complete, err := t.IsComplete()
	if err != nil {
		fatalf("Failed to inspect transaction: %v", err)
	}

	fmt.Printf("Signatures added: %d\n", res.SignaturesAdded)
	fmt.Printf("Complete:         %v\n", complete)
	if complete {
		txid, err := t.Txid()
		if err != nil {
			fatalf("Failed to compute txid: %v", err)
		}
		fmt.Printf("Txid:             %s\n", txid)
	}
	for i, e := range res.InputErrors {
		fmt.Fprintf(os.Stderr, "input %d: %v\n", i, e)
	}
	fmt.Println()
	fmt.Println(hex.EncodeToString(raw))
}

func cmdMerge() {
	usage := "cashtx merge <hex> <sig-hex>... [--context <file.yaml>]"
	rawHex := requireArg(2, usage)

	var sigs []string
	var prevouts []api.PrevoutValue
	for i := 3; i < len(os.Args); i++ {
		if os.Args[i] == "--context" {
			i++
			if i >= len(os.Args) {
				fatalf("Error: --context requires a file path")
			}
			ctx, err := loadSigningContext(os.Args[i], false)
			if err != nil {
				fatalf("Failed to load signing context: %v", err)
			}
			prevouts = ctx.prevoutValues()
			continue
		}
		sigs = append(sigs, os.Args[i])
	}
	if len(sigs) == 0 {
		fatalf("Error: at least one signature required\nUsage: %s", usage)
	}

	res, err := api.MergeSignaturesWithPrevouts(rawHex, sigs, prevouts)
	if err != nil {
		fatalf("Failed to merge signatures: %v", err)
	}
	fmt.Printf("Signatures added: %d\n", res.SignaturesAdded)
	fmt.Printf("Complete:         %v\n", res.Complete)
	if res.Txid != "" {
		fmt.Printf("Txid:             %s\n", res.Txid)
	}
	fmt.Println()
	fmt.Println(res.RawHex)
}

func cmdTxid() {
	rawHex := requireArg(2, "cashtx txid <hex>")

	txid, err := api.Txid(rawHex)
	if err != nil {
		fatalf("Failed to compute txid: %v", err)
	}
	if txid == "" {
		fatalf("Transaction is not fully signed; txid is not yet stable")
	}
	fmt.Println(txid)
}

func cmdSighash() {
	rawHex := requireArg(2, "cashtx sighash <hex> <input-index>")
	idxStr := requireArg(3, "cashtx sighash <hex> <input-index>")

	var idx int
	if _, err := fmt.Sscanf(idxStr, "%d", &idx); err != nil || idx < 0 {
		fatalf("Invalid input index: %s", idxStr)
	}

	digest, err := api.SighashHex(rawHex, idx)
	if err != nil {
		fatalf("Failed to compute sighash: %v", err)
	}
	fmt.Println(digest)
}

func cmdEstimate() {
	rawHex := requireArg(2, "cashtx estimate <hex> [--schnorr]")

	useSchnorr := false
	for _, arg := range os.Args[3:] {
		if arg == "--schnorr" {
			useSchnorr = true
		} else {
			fatalf("Unknown option: %s", arg)
		}
	}

	size, err := api.EstimateSize(rawHex, useSchnorr)
	if err != nil {
		fatalf("Failed to estimate size: %v", err)
	}
	fmt.Printf("%d bytes\n", size)
}
