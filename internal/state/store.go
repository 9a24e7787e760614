package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/yimingWOW/bloom/pkg/vault"
)

var ErrNoState = errors.New("no vault state saved")

// Record is the on-disk form of a vault account.
type Record struct {
	Address      solana.PublicKey `json:"address"`
	Pool         solana.PublicKey `json:"pool"`
	TokenMintA   solana.PublicKey `json:"token_mint_a"`
	TokenMintB   solana.PublicKey `json:"token_mint_b"`
	ShareMint    solana.PublicKey `json:"share_mint"`
	Admin        solana.PublicKey `json:"admin"`
	Position     solana.PublicKey `json:"position"`
	PositionMint solana.PublicKey `json:"position_mint"`
	PositionATA  solana.PublicKey `json:"position_token_account"`
	LowerTick    int32            `json:"lower_tick"`
	UpperTick    int32            `json:"upper_tick"`
	UpdatedAt    string           `json:"updated_at"`
}

func FromAccount(a vault.Account) Record {
	return Record{
		Address:      a.Address,
		Pool:         a.Pool,
		TokenMintA:   a.TokenMintA,
		TokenMintB:   a.TokenMintB,
		ShareMint:    a.ShareMint,
		Admin:        a.Admin,
		Position:     a.Position.Address,
		PositionMint: a.Position.Mint,
		PositionATA:  a.Position.TokenAccount,
		LowerTick:    a.Range.LowerTick,
		UpperTick:    a.Range.UpperTick,
	}
}

func (r Record) Account() vault.Account {
	return vault.Account{
		Address:    r.Address,
		Pool:       r.Pool,
		TokenMintA: r.TokenMintA,
		TokenMintB: r.TokenMintB,
		ShareMint:  r.ShareMint,
		Admin:      r.Admin,
		Position: vault.PositionHandle{
			Address:      r.Position,
			Mint:         r.PositionMint,
			TokenAccount: r.PositionATA,
		},
		Range: vault.PriceRange{LowerTick: r.LowerTick, UpperTick: r.UpperTick},
	}
}

// Store persists one vault account as JSON.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (vault.Account, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return vault.Account{}, fmt.Errorf("%w: %s", ErrNoState, s.path)
		}
		return vault.Account{}, fmt.Errorf("read state: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return vault.Account{}, fmt.Errorf("parse state: %w", err)
	}
	return r.Account(), nil
}

// Save writes the account through a temp file and rename.
func (s *Store) Save(a vault.Account) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	r := FromAccount(a)
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
