package allocation

import (
	"context"
	"errors"
	"math"
	"math/big"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graph-allocopt/internal/domain"
	"graph-allocopt/internal/eligibility"
	"graph-allocopt/internal/network"
	netstub "graph-allocopt/internal/network/stub"
	"graph-allocopt/internal/solver"
	solverstub "graph-allocopt/internal/solver/stub"
)

// Valid CIDv0 deployment IDs (base58 of 0x12 0x20 ++ digest).
const (
	depA = "QmNQa1FSTXNHmrjjfgUW3Px3Vkke4oKiFWdigWkYSux2Pi"
	depB = "QmNUVJPjvXxb55spvBuoNKEvGWzoGzzmwLC8MAovVWhMiR"
	depC = "QmNLfbof5rLekrACjeuLk9JmGZD2HDBHCU4z16iYKmx5SE"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testData() *network.Data {
	return &network.Data{
		Indexer: &domain.Indexer{
			Address:      "0xabc",
			StakedTokens: dec("1000"),
			Allocations: []domain.Allocation{
				{DeploymentID: depB, AllocatedTokens: dec("50"), CreatedAtEpoch: 700},
				{DeploymentID: depC, AllocatedTokens: dec("100"), CreatedAtEpoch: 701},
			},
		},
		Subgraphs: []*domain.SubgraphDeployment{
			{ID: depA, SignalledTokens: dec("100"), StakedTokens: dec("2000")},
			{ID: depB, SignalledTokens: dec("50"), StakedTokens: dec("500")},
			{ID: depC, SignalledTokens: dec("10"), StakedTokens: dec("0")},
		},
		Network: &domain.NetworkState{
			TotalTokensSignalled: dec("5000000"),
			TotalSupply:          dec("10000000000"),
			IssuancePerBlock:     dec("1.000000012184945188"),
			BlocksPerEpoch:       7200,
			CurrentEpoch:         712,
		},
	}
}

func baseParams(provider network.DataProvider, engine solver.Engine) Params {
	return Params{
		IndexerAddress:     "0xabc",
		Provider:           provider,
		Engine:             engine,
		GasPerAllocation:   dec("0.01"),
		AllocationLifetime: 28,
		MaxNewAllocations:  3,
		Mode:               domain.ModeOptimal,
		Logger:             zerolog.Nop(),
	}
}

func weiCeiling(grtAmount decimal.Decimal) *big.Int {
	return grtAmount.Shift(18).BigInt()
}

func TestAllocate_ThreeTargets(t *testing.T) {
	provider := &netstub.DataProvider{Data: testData()}
	engine := &solverstub.Engine{}

	plan, err := Allocate(context.Background(), baseParams(provider, engine))
	require.NoError(t, err)

	// K = min(maxNew=3, 3 rewardable targets)
	require.NotNil(t, engine.LastRequest)
	assert.Equal(t, 3, engine.LastRequest.MaxAllocations)
	assert.Equal(t, domain.ModeOptimal, engine.LastRequest.Mode)

	assert.LessOrEqual(t, len(plan), 3)

	total := new(big.Int)
	for _, wei := range plan {
		total.Add(total, wei)
	}
	// sum <= 1000 GRT in wei
	assert.LessOrEqual(t, total.Cmp(weiCeiling(dec("1000"))), 0,
		"allocated %s wei over a 1000 GRT budget", total)
}

func TestAllocate_CardinalityCapFromRewardables(t *testing.T) {
	data := testData()
	// Denied deployments carry no reward potential.
	data.Subgraphs[2].DeniedAt = 123

	provider := &netstub.DataProvider{Data: data}
	engine := &solverstub.Engine{}

	p := baseParams(provider, engine)
	p.MaxNewAllocations = 10

	_, err := Allocate(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 2, engine.LastRequest.MaxAllocations)
	assert.Equal(t, []int{0, 1}, engine.LastRequest.RewardableIxs)
}

func TestAllocate_PinnedAmountExact(t *testing.T) {
	provider := &netstub.DataProvider{Data: testData()}
	// Scripted response over the 2 remaining decision variables; the
	// engine never sees the pinned deployment.
	engine := &solverstub.Engine{
		Candidates:    [][]float64{{900, 40}},
		NonzeroCounts: []int{2},
		Profits:       [][]float64{{5, 1}},
	}

	p := baseParams(provider, engine)
	p.Pinnedlist = []string{depB}

	plan, err := Allocate(context.Background(), p)
	require.NoError(t, err)

	want := new(big.Int)
	want.SetString("50000000000000000000", 10) // 50 GRT
	require.Contains(t, plan, depB)
	assert.Equal(t, 0, plan[depB].Cmp(want), "pinned amount: got %s", plan[depB])
}

func TestAllocate_InsufficientStakeBeforeEngine(t *testing.T) {
	data := testData()
	data.Indexer.StakedTokens = dec("150")

	provider := &netstub.DataProvider{Data: data}
	engine := &solverstub.Engine{}

	p := baseParams(provider, engine)
	p.Pinnedlist = []string{depB} // 50 pinned
	p.Frozenlist = []string{depC} // 100 frozen

	_, err := Allocate(context.Background(), p)
	require.ErrorIs(t, err, eligibility.ErrInsufficientStake)
	assert.Equal(t, 0, engine.Calls, "engine invoked with no solvable problem")
}

func TestAllocate_FrozenNeverInPlan(t *testing.T) {
	provider := &netstub.DataProvider{Data: testData()}
	engine := &solverstub.Engine{}

	p := baseParams(provider, engine)
	p.Frozenlist = []string{depC}

	plan, err := Allocate(context.Background(), p)
	require.NoError(t, err)
	assert.NotContains(t, plan, depC)
}

func TestAllocate_DivergencePropagates(t *testing.T) {
	provider := &netstub.DataProvider{Data: testData()}
	engine := &solverstub.Engine{Diverge: true}

	_, err := Allocate(context.Background(), baseParams(provider, engine))
	require.ErrorIs(t, err, solver.ErrDiverged)
}

func TestAllocate_BudgetExceededRejected(t *testing.T) {
	provider := &netstub.DataProvider{Data: testData()}
	engine := &solverstub.Engine{
		Candidates:    [][]float64{{600, 300, 200}}, // 1100 > 1000
		NonzeroCounts: []int{3},
		Profits:       [][]float64{{1, 1, 1}},
	}

	_, err := Allocate(context.Background(), baseParams(provider, engine))

	var bud *BudgetExceededError
	require.ErrorAs(t, err, &bud)
	assert.True(t, bud.Excess.Equal(dec("100")), "excess: got %s", bud.Excess)
}

func TestAllocate_NaNCandidateSkippedByValidator(t *testing.T) {
	provider := &netstub.DataProvider{Data: testData()}
	engine := &solverstub.Engine{
		Candidates: [][]float64{
			{600, 300, math.NaN()}, // NaN sum is skipped, not a violation
			{500, 300, 100},
		},
		NonzeroCounts: []int{3, 3},
		Profits:       [][]float64{{1, 1, 1}, {2, 1, 1}},
	}

	_, err := Allocate(context.Background(), baseParams(provider, engine))
	require.NoError(t, err)
}

func TestAllocate_MalformedResponse(t *testing.T) {
	provider := &netstub.DataProvider{Data: testData()}
	engine := &solverstub.Engine{
		Candidates:    [][]float64{{600, 300}}, // wrong length for n=3
		NonzeroCounts: []int{2},
		Profits:       [][]float64{{1, 1}},
	}

	_, err := Allocate(context.Background(), baseParams(provider, engine))
	require.ErrorIs(t, err, solver.ErrMalformedResponse)
}

func TestAllocate_EmptyNetworkData(t *testing.T) {
	provider := &netstub.DataProvider{Err: network.ErrEmptyNetworkData}
	engine := &solverstub.Engine{}

	_, err := Allocate(context.Background(), baseParams(provider, engine))
	require.ErrorIs(t, err, network.ErrEmptyNetworkData)
}

func TestAllocate_InvalidConstraintID(t *testing.T) {
	provider := &netstub.DataProvider{Data: testData()}
	engine := &solverstub.Engine{}

	p := baseParams(provider, engine)
	p.Blacklist = []string{"not-a-deployment-id"}

	_, err := Allocate(context.Background(), p)
	require.Error(t, err)
	assert.Equal(t, 0, provider.Calls)
}

func TestOptimize_MultipleReportedOptions(t *testing.T) {
	provider := &netstub.DataProvider{Data: testData()}
	engine := &solverstub.Engine{
		Candidates: [][]float64{
			{1000, 0, 0},
			{700, 300, 0},
		},
		NonzeroCounts: []int{1, 2},
		Profits:       [][]float64{{10, 0, 0}, {8, 3, 0}},
	}

	p := baseParams(provider, engine)
	p.NumReportedOptions = 2

	strategies, err := Optimize(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, strategies, 2)

	// Sorted by profit descending: 11 (2 nonzeros) before 10 (1 nonzero)
	assert.Equal(t, 2, strategies[0].NumAllocations)
	assert.Equal(t, 1, strategies[1].NumAllocations)
	assert.True(t, strategies[0].Profit.GreaterThanOrEqual(strategies[1].Profit))
}

func TestAllocate_SmoothingMode(t *testing.T) {
	provider := &netstub.DataProvider{Data: testData()}
	engine := &solverstub.SmoothingEngine{}

	tau := dec("0.5")
	p := Params{
		IndexerAddress:     "0xabc",
		Provider:           provider,
		SmoothingEngine:    engine,
		GasPerAllocation:   dec("0.01"),
		AllocationLifetime: 28,
		MaxNewAllocations:  3,
		TauFactor:          &tau,
		Pinnedlist:         []string{depB},
		Logger:             zerolog.Nop(),
	}

	plan, err := Allocate(context.Background(), p)
	require.NoError(t, err)

	// Constrained view plus unconstrained baseline
	assert.Equal(t, 2, provider.Calls)

	want := new(big.Int)
	want.SetString("50000000000000000000", 10)
	require.Contains(t, plan, depB)
	assert.Equal(t, 0, plan[depB].Cmp(want))

	total := new(big.Int)
	for _, wei := range plan {
		total.Add(total, wei)
	}
	assert.LessOrEqual(t, total.Cmp(weiCeiling(dec("1000"))), 0)
}

func TestAllocate_SmoothingFrozenExcluded(t *testing.T) {
	provider := &netstub.DataProvider{Data: testData()}
	engine := &solverstub.SmoothingEngine{}

	tau := dec("0")
	p := Params{
		IndexerAddress:     "0xabc",
		Provider:           provider,
		SmoothingEngine:    engine,
		GasPerAllocation:   dec("0.01"),
		AllocationLifetime: 28,
		MaxNewAllocations:  3,
		TauFactor:          &tau,
		Frozenlist:         []string{depC},
		Logger:             zerolog.Nop(),
	}

	plan, err := Allocate(context.Background(), p)
	require.NoError(t, err)
	assert.NotContains(t, plan, depC)
}

// TestAllocate_BudgetProperty drives randomized stake, signal and
// constraint membership through the full flow and checks the budget
// ceiling on every returned plan. MaxNewAllocations=1 keeps the greedy
// stub's arithmetic exact.
func TestAllocate_BudgetProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []string{depA, depB, depC}

	for trial := 0; trial < 200; trial++ {
		data := testData()
		for _, sg := range data.Subgraphs {
			sg.SignalledTokens = decimal.NewFromInt(rng.Int63n(10000) + 1)
			sg.StakedTokens = decimal.NewFromInt(rng.Int63n(100000))
		}
		data.Indexer.StakedTokens = decimal.NewFromInt(rng.Int63n(5000) + 1)

		p := baseParams(&netstub.DataProvider{Data: data}, &solverstub.Engine{})
		p.MaxNewAllocations = 1
		frozenStake := decimal.Zero
		for _, id := range ids {
			switch rng.Intn(4) {
			case 0:
				p.Pinnedlist = append(p.Pinnedlist, id)
			case 1:
				p.Frozenlist = append(p.Frozenlist, id)
				frozenStake = frozenStake.Add(data.Indexer.AllocationOn(id))
			}
		}

		plan, err := Allocate(context.Background(), p)
		if errors.Is(err, eligibility.ErrInsufficientStake) {
			continue
		}
		require.NoError(t, err, "trial %d", trial)

		// Ceiling = available + pinned = total stake - frozen stake
		ceiling := weiCeiling(data.Indexer.StakedTokens.Sub(frozenStake))
		total := new(big.Int)
		for _, wei := range plan {
			total.Add(total, wei)
		}
		require.LessOrEqual(t, total.Cmp(ceiling), 0,
			"trial %d: allocated %s wei, ceiling %s", trial, total, ceiling)
	}
}
