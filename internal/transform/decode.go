// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"encoding/base64"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

var tenPow = func() [40]*big.Int {
	var out [40]*big.Int
	p := big.NewInt(1)
	ten := big.NewInt(10)
	for i := range out {
		out[i] = new(big.Int).Set(p)
		p.Mul(p, ten)
	}
	return out
}()

// decodeDecimal decodes a base64-encoded, big-endian, two's-complement
// integer scaled by 10^-scale into a plain decimal string, per §4.1.
func decodeDecimal(b64 string, scale int) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", errors.Wrap(err, "decimal: invalid base64")
	}
	if len(raw) == 0 {
		return "", errors.New("decimal: empty payload")
	}

	unscaled := new(big.Int).SetBytes(raw)
	if raw[0]&0x80 != 0 {
		// Two's complement: subtract 2^(8*len).
		full := new(big.Int).Lsh(big.NewInt(1), uint(8*len(raw)))
		unscaled.Sub(unscaled, full)
	}

	if scale <= 0 {
		return unscaled.String(), nil
	}

	neg := unscaled.Sign() < 0
	if neg {
		unscaled.Neg(unscaled)
	}

	var divisor *big.Int
	if scale < len(tenPow) {
		divisor = tenPow[scale]
	} else {
		divisor = new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	}

	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(unscaled, divisor, frac)

	fracStr := frac.String()
	for len(fracStr) < scale {
		fracStr = "0" + fracStr
	}

	out := whole.String() + "." + fracStr
	if neg {
		out = "-" + out
	}
	return out, nil
}

// decodeTemporal converts an upstream epoch-milliseconds timestamp into
// the target's TIME/TIMESTAMP text form, per §4.1.
func decodeTemporal(epochMillis int64) string {
	return time.UnixMilli(epochMillis).UTC().Format("2006-01-02 15:04:05.000")
}

// decodeDate converts an upstream day-count-since-epoch into the
// target's DATE text form, per §4.1.
func decodeDate(days int64) string {
	return time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, int(days)).
		Format("2006-01-02")
}

// decodeBits decodes a base64, little-endian bit string, right-trimmed
// to precision bits, into a textual string of '0'/'1' characters, per
// §4.1.
func decodeBits(b64 string, precision int) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", errors.Wrap(err, "bits: invalid base64")
	}
	if precision <= 0 {
		precision = len(raw) * 8
	}
	out := make([]byte, 0, precision)
	for i := 0; i < precision; i++ {
		byteIdx := i / 8
		bitIdx := uint(i % 8)
		var bit byte
		if byteIdx < len(raw) {
			bit = (raw[byteIdx] >> bitIdx) & 1
		}
		if bit == 1 {
			out = append(out, '1')
		} else {
			out = append(out, '0')
		}
	}
	return string(out), nil
}

// decodeBinary base64-decodes a binary column's raw payload into its
// logical byte string. Escaping for the bulk-load text format happens
// uniformly when the row is encoded, via types.EncodeField.
func decodeBinary(b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", errors.Wrap(err, "binary: invalid base64")
	}
	return string(raw), nil
}
