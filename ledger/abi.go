/*
abi.go - Minimal ABI codec for the insurance contract surface

PURPOSE:
  Encodes call data and decodes return data for the fixed set of contract
  methods this system consumes. This is deliberately not a general ABI
  implementation: it handles exactly the word layouts the contract returns
  (static tuples, dynamic strings, uint256 arrays) and nothing more.

WORD LAYOUT REMINDERS:
  - Everything is 32-byte words; dynamic values sit in a "tail" region
    addressed by byte offsets stored in the head.
  - A tuple containing a string is dynamic, so it is itself reached through
    an offset word.
  - Method selectors are the first 4 bytes of keccak256(signature).

SEE ALSO:
  - rpc.go: Uses these helpers for eth_call / eth_sendTransaction payloads
*/
package ledger

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/warp/coverage-engine/insurance"
)

const wordSize = 32

// =============================================================================
// SELECTORS
// =============================================================================

// selector returns the 4-byte method selector for a canonical signature.
func selector(signature string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return h.Sum(nil)[:4]
}

var (
	selGetActivePlans   = selector("getActivePlans()")
	selGetPlanDetails   = selector("getPlanDetails(uint256)")
	selGetPolicyDetails = selector("getPolicyDetails(uint256)")
	selGetUserPolicies  = selector("getUserPolicies(address)")
	selCalculatePremium = selector("calculatePremium(uint256,uint256)")
	selPurchasePolicy   = selector("purchasePolicy(uint256,uint256)")
	selRenewPolicy      = selector("renewPolicy(uint256)")
	selCancelPolicy     = selector("cancelPolicy(uint256)")
)

// =============================================================================
// ENCODING
// =============================================================================

// encodeCall builds 0x-prefixed call data: selector followed by one 32-byte
// word per argument.
func encodeCall(sel []byte, words ...[]byte) string {
	data := make([]byte, 0, len(sel)+len(words)*wordSize)
	data = append(data, sel...)
	for _, w := range words {
		data = append(data, w...)
	}
	return "0x" + hex.EncodeToString(data)
}

func uintWord(v *big.Int) []byte {
	w := make([]byte, wordSize)
	v.FillBytes(w)
	return w
}

func addressWord(addr insurance.Address) []byte {
	w := make([]byte, wordSize)
	raw, _ := hex.DecodeString(strings.TrimPrefix(addr.String(), "0x"))
	copy(w[wordSize-len(raw):], raw)
	return w
}

// =============================================================================
// DECODING
// =============================================================================

// returnData is a window over ABI return bytes. tail() re-bases the window
// at an offset read from a head word, which is how nested dynamic values
// are reached.
type returnData struct {
	b []byte
}

func parseReturnData(hexData string) (returnData, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexData, "0x"))
	if err != nil {
		return returnData{}, fmt.Errorf("decode return data: %w", err)
	}
	return returnData{b: raw}, nil
}

func (r returnData) word(n int) ([]byte, error) {
	start := n * wordSize
	if start+wordSize > len(r.b) {
		return nil, fmt.Errorf("return data truncated at word %d", n)
	}
	return r.b[start : start+wordSize], nil
}

func (r returnData) uint(n int) (*big.Int, error) {
	w, err := r.word(n)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w), nil
}

func (r returnData) boolAt(n int) (bool, error) {
	v, err := r.uint(n)
	if err != nil {
		return false, err
	}
	return v.Sign() != 0, nil
}

func (r returnData) addressAt(n int) (insurance.Address, error) {
	w, err := r.word(n)
	if err != nil {
		return "", err
	}
	return insurance.Address("0x" + hex.EncodeToString(w[12:])), nil
}

// tail re-bases the window at the byte offset stored in head word n.
func (r returnData) tail(n int) (returnData, error) {
	off, err := r.uint(n)
	if err != nil {
		return returnData{}, err
	}
	if !off.IsUint64() || off.Uint64() > uint64(len(r.b)) {
		return returnData{}, fmt.Errorf("offset out of range at word %d", n)
	}
	return returnData{b: r.b[off.Uint64():]}, nil
}

// stringAt reads a dynamic string through head word n.
func (r returnData) stringAt(n int) (string, error) {
	t, err := r.tail(n)
	if err != nil {
		return "", err
	}
	length, err := t.uint(0)
	if err != nil {
		return "", err
	}
	if !length.IsUint64() || wordSize+length.Uint64() > uint64(len(t.b)) {
		return "", fmt.Errorf("string length out of range at word %d", n)
	}
	return string(t.b[wordSize : wordSize+length.Uint64()]), nil
}

// =============================================================================
// TUPLE DECODERS - The two record shapes the contract returns
// =============================================================================

// decodePlan decodes (string name, string category, string description,
// uint256 basePremium, bool active) with the window based at the tuple.
func decodePlan(r returnData, id insurance.PlanID) (insurance.Plan, error) {
	name, err := r.stringAt(0)
	if err != nil {
		return insurance.Plan{}, err
	}
	category, err := r.stringAt(1)
	if err != nil {
		return insurance.Plan{}, err
	}
	description, err := r.stringAt(2)
	if err != nil {
		return insurance.Plan{}, err
	}
	base, err := r.uint(3)
	if err != nil {
		return insurance.Plan{}, err
	}
	active, err := r.boolAt(4)
	if err != nil {
		return insurance.Plan{}, err
	}
	return insurance.Plan{
		ID: id, Name: name, Category: category, Description: description,
		BasePremium: base, Active: active,
	}, nil
}

// decodePolicy decodes (uint256 planId, address policyholder,
// uint256 startDate, uint256 endDate, uint256 numberOfPeopleCovered,
// uint256 premium, bool active). All fields static, so no offset hop.
func decodePolicy(r returnData, id insurance.PolicyID) (insurance.Policy, error) {
	planID, err := r.uint(0)
	if err != nil {
		return insurance.Policy{}, err
	}
	holder, err := r.addressAt(1)
	if err != nil {
		return insurance.Policy{}, err
	}
	start, err := r.uint(2)
	if err != nil {
		return insurance.Policy{}, err
	}
	end, err := r.uint(3)
	if err != nil {
		return insurance.Policy{}, err
	}
	people, err := r.uint(4)
	if err != nil {
		return insurance.Policy{}, err
	}
	premium, err := r.uint(5)
	if err != nil {
		return insurance.Policy{}, err
	}
	active, err := r.boolAt(6)
	if err != nil {
		return insurance.Policy{}, err
	}
	return insurance.Policy{
		ID:            id,
		PlanID:        insurance.PlanID(planID.Uint64()),
		Policyholder:  holder,
		StartDate:     start.Int64(),
		EndDate:       end.Int64(),
		PeopleCovered: int(people.Int64()),
		Premium:       premium,
		Active:        active,
	}, nil
}

// decodePlanArray decodes a dynamic array of Plan tuples from the full
// return data window.
func decodePlanArray(root returnData) ([]insurance.Plan, error) {
	arr, err := root.tail(0)
	if err != nil {
		return nil, err
	}
	length, err := arr.uint(0)
	if err != nil {
		return nil, err
	}
	n := int(length.Int64())

	// Element offsets are relative to the start of the element area.
	elems := returnData{b: arr.b[wordSize:]}
	plans := make([]insurance.Plan, 0, n)
	for i := 0; i < n; i++ {
		elem, err := elems.tail(i)
		if err != nil {
			return nil, err
		}
		plan, err := decodePlan(elem, insurance.PlanID(i))
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// decodeUintArray decodes a dynamic uint256[] from the full return window.
func decodeUintArray(root returnData) ([]*big.Int, error) {
	arr, err := root.tail(0)
	if err != nil {
		return nil, err
	}
	length, err := arr.uint(0)
	if err != nil {
		return nil, err
	}
	n := int(length.Int64())

	out := make([]*big.Int, 0, n)
	for i := 0; i < n; i++ {
		v, err := arr.uint(1 + i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
