package protocol

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/yimingWOW/bloom/pkg/pool/orca"
	"github.com/yimingWOW/bloom/pkg/sol"
)

// OrcaWhirlpoolProtocol reads Whirlpool accounts over RPC.
type OrcaWhirlpoolProtocol struct {
	SolClient *sol.Client
}

func NewOrcaWhirlpool(solClient *sol.Client) *OrcaWhirlpoolProtocol {
	return &OrcaWhirlpoolProtocol{
		SolClient: solClient,
	}
}

// FetchPoolsByPair returns every Whirlpool trading the pair, in either mint order.
func (p *OrcaWhirlpoolProtocol) FetchPoolsByPair(ctx context.Context, baseMint string, quoteMint string) ([]*orca.WhirlpoolPool, error) {
	accounts := make([]*rpc.KeyedAccount, 0)

	programAccounts, err := p.getWhirlpoolAccountsByTokenPair(ctx, baseMint, quoteMint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pools with base token %s: %w", baseMint, err)
	}
	accounts = append(accounts, programAccounts...)

	programAccounts, err = p.getWhirlpoolAccountsByTokenPair(ctx, quoteMint, baseMint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pools with base token %s: %w", quoteMint, err)
	}
	accounts = append(accounts, programAccounts...)

	res := make([]*orca.WhirlpoolPool, 0, len(accounts))
	for _, v := range accounts {
		data := v.Account.Data.GetBinary()
		layout := &orca.WhirlpoolPool{}
		if err := layout.Decode(data); err != nil {
			continue
		}
		layout.PoolId = v.Pubkey
		res = append(res, layout)
	}
	return res, nil
}

func (p *OrcaWhirlpoolProtocol) getWhirlpoolAccountsByTokenPair(ctx context.Context, baseMint string, quoteMint string) (rpc.GetProgramAccountsResult, error) {
	baseKey, err := solana.PublicKeyFromBase58(baseMint)
	if err != nil {
		return nil, fmt.Errorf("invalid base mint address: %w", err)
	}
	quoteKey, err := solana.PublicKeyFromBase58(quoteMint)
	if err != nil {
		return nil, fmt.Errorf("invalid quote mint address: %w", err)
	}

	var knownPoolLayout orca.WhirlpoolPool
	result, err := p.SolClient.GetProgramAccounts(ctx, orca.ORCA_WHIRLPOOL_PROGRAM_ID, []rpc.RPCFilter{
		{
			DataSize: knownPoolLayout.Span(),
		},
		{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: knownPoolLayout.Offset("TokenMintA"),
				Bytes:  baseKey.Bytes(),
			},
		},
		{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: knownPoolLayout.Offset("TokenMintB"),
				Bytes:  quoteKey.Bytes(),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pools: %w", err)
	}

	return result, nil
}

// FetchPoolByID reads and decodes one Whirlpool account.
func (p *OrcaWhirlpoolProtocol) FetchPoolByID(ctx context.Context, poolId solana.PublicKey) (*orca.WhirlpoolPool, error) {
	data, err := p.SolClient.GetAccountData(ctx, poolId)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool account %s: %w", poolId, err)
	}

	layout := &orca.WhirlpoolPool{}
	if err := layout.Decode(data); err != nil {
		return nil, fmt.Errorf("failed to decode pool data for %s: %w", poolId, err)
	}
	layout.PoolId = poolId

	return layout, nil
}

// FetchPosition reads a position account in any known layout version.
func (p *OrcaWhirlpoolProtocol) FetchPosition(ctx context.Context, position solana.PublicKey) (*orca.WhirlpoolPosition, error) {
	data, err := p.SolClient.GetAccountData(ctx, position)
	if err != nil {
		return nil, fmt.Errorf("failed to get position account %s: %w", position, err)
	}
	pos, err := orca.DecodePosition(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode position %s: %w", position, err)
	}
	return pos, nil
}

// FetchTickArray reads the tick array of pool that holds tick.
func (p *OrcaWhirlpoolProtocol) FetchTickArray(ctx context.Context, pool *orca.WhirlpoolPool, tick int32) (*orca.WhirlpoolTickArray, error) {
	start := orca.GetWhirlpoolTickArrayStartIndexByTick(int64(tick), int64(pool.TickSpacing))
	addr, err := orca.DeriveWhirlpoolTickArrayPDA(pool.PoolId, start)
	if err != nil {
		return nil, err
	}
	data, err := p.SolClient.GetAccountData(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to get tick array %s: %w", addr, err)
	}
	arr := &orca.WhirlpoolTickArray{}
	if err := arr.Decode(data); err != nil {
		return nil, fmt.Errorf("failed to decode tick array %s: %w", addr, err)
	}
	return arr, nil
}
