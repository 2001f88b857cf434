package ledger

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warp/coverage-engine/insurance"
)

// =============================================================================
// TEST ENCODERS - Build return data the way a node would
// =============================================================================

func word(v *big.Int) []byte {
	w := make([]byte, wordSize)
	v.FillBytes(w)
	return w
}

func encTestString(s string) []byte {
	out := word(big.NewInt(int64(len(s))))
	padded := (len(s) + wordSize - 1) / wordSize * wordSize
	buf := make([]byte, padded)
	copy(buf, s)
	return append(out, buf...)
}

// encTestPlan encodes (string,string,string,uint256,bool) based at itself.
func encTestPlan(name, category, desc string, base *big.Int, active bool) []byte {
	headLen := 5 * wordSize
	nameB := encTestString(name)
	catB := encTestString(category)
	descB := encTestString(desc)

	activeWord := big.NewInt(0)
	if active {
		activeWord = big.NewInt(1)
	}

	var out []byte
	out = append(out, word(big.NewInt(int64(headLen)))...)
	out = append(out, word(big.NewInt(int64(headLen+len(nameB))))...)
	out = append(out, word(big.NewInt(int64(headLen+len(nameB)+len(catB))))...)
	out = append(out, word(base)...)
	out = append(out, word(activeWord)...)
	out = append(out, nameB...)
	out = append(out, catB...)
	out = append(out, descB...)
	return out
}

func encTestPlanArray(plans ...[]byte) string {
	// word0: offset to array (0x20); then length; then element offsets
	// relative to the element area; then elements.
	var out []byte
	out = append(out, word(big.NewInt(wordSize))...)
	out = append(out, word(big.NewInt(int64(len(plans))))...)

	offsetArea := len(plans) * wordSize
	running := offsetArea
	for _, p := range plans {
		out = append(out, word(big.NewInt(int64(running)))...)
		running += len(p)
	}
	for _, p := range plans {
		out = append(out, p...)
	}
	return "0x" + hex.EncodeToString(out)
}

// =============================================================================
// DECODER TESTS
// =============================================================================

func TestDecodePlan_RoundTrip(t *testing.T) {
	base, _ := new(big.Int).SetString("25000000000000000", 10)
	raw := encTestPlan("Silver Shield", "Family", "Broader coverage including dental.", base, true)

	plan, err := decodePlan(returnData{b: raw}, 1)
	require.NoError(t, err)
	require.Equal(t, insurance.PlanID(1), plan.ID)
	require.Equal(t, "Silver Shield", plan.Name)
	require.Equal(t, "Family", plan.Category)
	require.Equal(t, "Broader coverage including dental.", plan.Description)
	require.Equal(t, base.String(), plan.BasePremium.String())
	require.True(t, plan.Active)
}

func TestDecodePlanArray(t *testing.T) {
	p0 := encTestPlan("Basic Care", "Individual", "Essentials.", big.NewInt(100), true)
	p1 := encTestPlan("Gold Guard", "Family", "Comprehensive.", big.NewInt(500), false)

	rd, err := parseReturnData(encTestPlanArray(p0, p1))
	require.NoError(t, err)

	plans, err := decodePlanArray(rd)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	require.Equal(t, "Basic Care", plans[0].Name)
	require.Equal(t, insurance.PlanID(0), plans[0].ID)
	require.Equal(t, "Gold Guard", plans[1].Name)
	require.False(t, plans[1].Active)
}

func TestDecodePlanArray_Empty(t *testing.T) {
	rd, err := parseReturnData(encTestPlanArray())
	require.NoError(t, err)
	plans, err := decodePlanArray(rd)
	require.NoError(t, err)
	require.Empty(t, plans)
}

func TestDecodePolicy(t *testing.T) {
	holderHex := "00000000000000000000000011112222333344445555666677778888aaaabbbb"
	holderBytes, _ := hex.DecodeString(holderHex)

	var raw []byte
	raw = append(raw, word(big.NewInt(2))...)                   // planId
	raw = append(raw, holderBytes...)                           // policyholder
	raw = append(raw, word(big.NewInt(1_700_000_000))...)       // startDate
	raw = append(raw, word(big.NewInt(1_731_536_000))...)       // endDate
	raw = append(raw, word(big.NewInt(4))...)                   // people
	raw = append(raw, word(big.NewInt(34_000_000_000_000))...)  // premium
	raw = append(raw, word(big.NewInt(1))...)                   // active

	policy, err := decodePolicy(returnData{b: raw}, 7)
	require.NoError(t, err)
	require.Equal(t, insurance.PolicyID(7), policy.ID)
	require.Equal(t, insurance.PlanID(2), policy.PlanID)
	require.Equal(t, insurance.Address("0x11112222333344445555666677778888aaaabbbb"), policy.Policyholder)
	require.Equal(t, int64(1_700_000_000), policy.StartDate)
	require.Equal(t, int64(1_731_536_000), policy.EndDate)
	require.Equal(t, 4, policy.PeopleCovered)
	require.Equal(t, "34000000000000", policy.Premium.String())
	require.True(t, policy.Active)
}

func TestDecodeUintArray(t *testing.T) {
	var raw []byte
	raw = append(raw, word(big.NewInt(wordSize))...)
	raw = append(raw, word(big.NewInt(3))...)
	raw = append(raw, word(big.NewInt(11))...)
	raw = append(raw, word(big.NewInt(22))...)
	raw = append(raw, word(big.NewInt(33))...)

	ids, err := decodeUintArray(returnData{b: raw})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	require.Equal(t, int64(22), ids[1].Int64())
}

func TestDecode_TruncatedData(t *testing.T) {
	_, err := decodePolicy(returnData{b: make([]byte, 3*wordSize)}, 1)
	require.Error(t, err)

	short := returnData{b: word(big.NewInt(1_000_000))}
	_, err = short.tail(0)
	require.Error(t, err)
}

// =============================================================================
// ENCODER TESTS
// =============================================================================

func TestEncodeCall_Shape(t *testing.T) {
	data := encodeCall(selCalculatePremium, uintWord(big.NewInt(3)), uintWord(big.NewInt(2)))
	require.True(t, strings.HasPrefix(data, "0x"))

	raw, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
	require.NoError(t, err)
	require.Len(t, raw, 4+2*wordSize)
	require.Equal(t, selCalculatePremium, raw[:4])
	require.Equal(t, byte(3), raw[4+wordSize-1])
	require.Equal(t, byte(2), raw[4+2*wordSize-1])
}

func TestSelectors_DistinctAndStable(t *testing.T) {
	sels := map[string][]byte{
		"getActivePlans":   selGetActivePlans,
		"getPlanDetails":   selGetPlanDetails,
		"getPolicyDetails": selGetPolicyDetails,
		"getUserPolicies":  selGetUserPolicies,
		"calculatePremium": selCalculatePremium,
		"purchasePolicy":   selPurchasePolicy,
		"renewPolicy":      selRenewPolicy,
		"cancelPolicy":     selCancelPolicy,
	}
	seen := map[string]string{}
	for name, sel := range sels {
		require.Len(t, sel, 4, name)
		key := hex.EncodeToString(sel)
		if prev, dup := seen[key]; dup {
			t.Fatalf("selector collision between %s and %s", name, prev)
		}
		seen[key] = name
	}
	require.Equal(t, selector("getActivePlans()"), selGetActivePlans)
}

func TestAddressWord(t *testing.T) {
	w := addressWord("0x11112222333344445555666677778888aaaabbbb")
	require.Len(t, w, wordSize)
	require.Equal(t, hex.EncodeToString(w[:12]), strings.Repeat("0", 24))
	require.Equal(t, "11112222333344445555666677778888aaaabbbb", hex.EncodeToString(w[12:]))
}
