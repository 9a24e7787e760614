package sol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

var (
	// WSOL is the wrapped SOL mint.
	WSOL = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	ErrTxFailed      = errors.New("transaction failed")
	ErrTxUnconfirmed = errors.New("transaction not confirmed")
)

type Config struct {
	Endpoint     string
	MaxRetries   uint
	RetryBackoff time.Duration

	// ConfirmTimeout bounds how long SendTx waits for confirmation.
	ConfirmTimeout time.Duration
}

// Client wraps the Solana RPC client. Reads retry with backoff; transaction sends
// never do.
type Client struct {
	RpcClient *rpc.Client

	cfg    Config
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("rpc endpoint is required")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		RpcClient: rpc.New(cfg.Endpoint),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

func (c *Client) Close() {
	if c.RpcClient != nil {
		_ = c.RpcClient.Close()
	}
}

func (c *Client) read(ctx context.Context, what string, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(c.cfg.MaxRetries),
		retry.Delay(c.cfg.RetryBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, rpc.ErrNotFound) }),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("rpc read retry", zap.String("call", what), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

// GetAccountData returns the raw data of an account. A missing account yields
// rpc.ErrNotFound.
func (c *Client) GetAccountData(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	var data []byte
	err := c.read(ctx, "getAccountInfo", func() error {
		res, err := c.RpcClient.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{Commitment: rpc.CommitmentConfirmed})
		if err != nil {
			return err
		}
		if res == nil || res.Value == nil {
			return rpc.ErrNotFound
		}
		data = res.Value.Data.GetBinary()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	return data, nil
}

// GetProgramAccounts lists the accounts of a program matching filters.
func (c *Client) GetProgramAccounts(ctx context.Context, program solana.PublicKey, filters []rpc.RPCFilter) (rpc.GetProgramAccountsResult, error) {
	var out rpc.GetProgramAccountsResult
	err := c.read(ctx, "getProgramAccounts", func() error {
		res, err := c.RpcClient.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
			Filters:    filters,
		})
		out = res
		return err
	})
	return out, err
}

// GetMint decodes an SPL mint account.
func (c *Client) GetMint(ctx context.Context, mint solana.PublicKey) (*token.Mint, error) {
	data, err := c.GetAccountData(ctx, mint)
	if err != nil {
		return nil, err
	}
	var m token.Mint
	if err := bin.NewBinDecoder(data).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode mint %s: %w", mint, err)
	}
	return &m, nil
}

// GetUserTokenBalance returns owner's balance in its associated token account for
// mint, or zero if the account does not exist.
func (c *Client) GetUserTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, err
	}
	data, err := c.GetAccountData(ctx, ata)
	if errors.Is(err, rpc.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var acct token.Account
	if err := bin.NewBinDecoder(data).Decode(&acct); err != nil {
		return 0, fmt.Errorf("decode token account %s: %w", ata, err)
	}
	return acct.Amount, nil
}

// EnsureTokenAccount returns owner's associated token account for mint, creating it
// with payer funding the rent if it does not exist.
func (c *Client) EnsureTokenAccount(ctx context.Context, payer solana.PrivateKey, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	_, err = c.GetAccountData(ctx, ata)
	if err == nil {
		return ata, nil
	}
	if !errors.Is(err, rpc.ErrNotFound) {
		return solana.PublicKey{}, err
	}

	ix := associatedtokenaccount.NewCreateInstruction(payer.PublicKey(), owner, mint).Build()
	if _, err := c.Send(ctx, []solana.PrivateKey{payer}, ix); err != nil {
		return solana.PublicKey{}, fmt.Errorf("create token account %s: %w", ata, err)
	}
	return ata, nil
}

func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	err := c.read(ctx, "getLatestBlockhash", func() error {
		res, err := c.RpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		hash = res.Value.Blockhash
		return nil
	})
	return hash, err
}

// Send signs instructions with signers (the first one pays) against a fresh
// blockhash and waits for confirmation.
func (c *Client) Send(ctx context.Context, signers []solana.PrivateKey, instructions ...solana.Instruction) (solana.Signature, error) {
	hash, err := c.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.SendTx(ctx, hash, signers, instructions, false)
}

// SendTx signs and submits a transaction, then polls until it is confirmed or fails.
func (c *Client) SendTx(ctx context.Context, blockhash solana.Hash, signers []solana.PrivateKey, instructions []solana.Instruction, skipPreflight bool) (solana.Signature, error) {
	if len(signers) == 0 {
		return solana.Signature{}, errors.New("at least one signer is required")
	}
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(signers[0].PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := c.RpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       skipPreflight,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	c.logger.Debug("transaction sent", zap.Stringer("signature", sig), zap.Int("instructions", len(instructions)))

	if err := c.waitForConfirmation(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

func (c *Client) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	return retry.Do(func() error {
		res, err := c.RpcClient.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			return err
		}
		if res == nil || len(res.Value) == 0 {
			return ErrTxUnconfirmed
		}
		done, err := confirmed(res.Value[0])
		if err != nil {
			return retry.Unrecoverable(fmt.Errorf("%s: %w", sig, err))
		}
		if !done {
			return ErrTxUnconfirmed
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// confirmed reports whether a signature status has reached confirmed commitment. A
// status carrying an error means the transaction landed and failed.
func confirmed(status *rpc.SignatureStatusesResult) (bool, error) {
	if status == nil {
		return false, nil
	}
	if status.Err != nil {
		return false, fmt.Errorf("%w: %v", ErrTxFailed, status.Err)
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return true, nil
	}
	return false, nil
}
