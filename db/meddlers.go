package db

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/hermeznetwork/tracerr"
)

// BigIntMeddler encodes or decodes a *big.Int field to or from a decimal
// string.  A Nullable meddler stores a nil field as NULL.
type BigIntMeddler struct {
	Nullable bool
}

// PreRead is called before a Scan operation for fields that have the BigIntMeddler
func (b BigIntMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullString), nil
}

// PostRead is called after a Scan operation for fields that have the BigIntMeddler
func (b BigIntMeddler) PostRead(fieldPtr, scanTarget interface{}) error {
	field := fieldPtr.(**big.Int)
	raw := scanTarget.(*sql.NullString)
	if !raw.Valid {
		if !b.Nullable {
			return tracerr.Wrap(fmt.Errorf("BigIntMeddler.PostRead: NULL in a not nullable column"))
		}
		*field = nil
		return nil
	}
	value, ok := new(big.Int).SetString(raw.String, 10)
	if !ok {
		return tracerr.Wrap(fmt.Errorf("big.Int.SetString failed on \"%v\"", raw.String))
	}
	*field = value
	return nil
}

// PreWrite is called before an Insert or Update operation for fields that have the BigIntMeddler
func (b BigIntMeddler) PreWrite(fieldPtr interface{}) (saveValue interface{}, err error) {
	field := fieldPtr.(*big.Int)
	if field == nil {
		if !b.Nullable {
			return nil, tracerr.Wrap(fmt.Errorf("BigIntMeddler.PreWrite: nil in a not nullable column"))
		}
		return nil, nil
	}
	return field.String(), nil
}
