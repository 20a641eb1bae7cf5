package postgres

import (
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

func numeric(v *big.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: new(big.Int).Set(v), Valid: true}
}

// bigFromText parses a NUMERIC selected as ::text. NULL stays nil.
func bigFromText(s *string) *big.Int {
	if s == nil {
		return nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil
	}
	return v
}
