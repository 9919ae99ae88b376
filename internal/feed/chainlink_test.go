package feed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type revertError struct{}

func (revertError) Error() string { return "execution reverted: No data present" }
func (revertError) ErrorCode() int { return 3 }

type fakeCaller struct {
	abi       abi.ABI
	responses map[string][]byte
	failures  int
	failWith  error
	calls     int
	lastTo    common.Address
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls++
	if msg.To != nil {
		f.lastTo = *msg.To
	}
	if f.failWith != nil {
		return nil, f.failWith
	}
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	method, err := f.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	resp, ok := f.responses[method.Name]
	if !ok {
		return nil, fmt.Errorf("no response for %s", method.Name)
	}
	return resp, nil
}

func newFakeCaller(t *testing.T) *fakeCaller {
	t.Helper()
	parsed, err := AggregatorV3ABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	roundID, _ := new(big.Int).SetString("18446744073709562300", 10)
	round, err := parsed.Methods["latestRoundData"].Outputs.Pack(
		roundID,
		new(big.Int).Mul(big.NewInt(3800), big.NewInt(1e8)),
		big.NewInt(1700000000),
		big.NewInt(1700000012),
		roundID,
	)
	if err != nil {
		t.Fatalf("pack latestRoundData: %v", err)
	}
	decimals, err := parsed.Methods["decimals"].Outputs.Pack(uint8(8))
	if err != nil {
		t.Fatalf("pack decimals: %v", err)
	}
	description, err := parsed.Methods["description"].Outputs.Pack("ETH / USD")
	if err != nil {
		t.Fatalf("pack description: %v", err)
	}

	return &fakeCaller{
		abi: parsed,
		responses: map[string][]byte{
			"latestRoundData": round,
			"decimals":        decimals,
			"description":     description,
		},
	}
}

func TestChainlinkLatestRoundData(t *testing.T) {
	caller := newFakeCaller(t)
	address := common.HexToAddress("0x694AA1769357215DE4FAC081bf1f309aDC325306")

	reader, err := NewChainlink(caller, address, ChainlinkConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("new chainlink: %v", err)
	}

	round, err := reader.LatestRoundData(context.Background())
	if err != nil {
		t.Fatalf("latest round data: %v", err)
	}
	if round.Answer.Cmp(new(big.Int).Mul(big.NewInt(3800), big.NewInt(1e8))) != 0 {
		t.Fatalf("answer mismatch: %s", round.Answer)
	}
	if round.UpdatedAt.Uint64() != 1700000012 {
		t.Fatalf("updated at mismatch: %s", round.UpdatedAt)
	}
	if round.RoundID.Cmp(round.AnsweredInRound) != 0 {
		t.Fatalf("round ids mismatch: %s %s", round.RoundID, round.AnsweredInRound)
	}
	if caller.lastTo != address {
		t.Fatalf("call sent to %s", caller.lastTo.Hex())
	}

	price, err := PriceFeedData(context.Background(), reader)
	if err != nil {
		t.Fatalf("price feed data: %v", err)
	}
	if price.Cmp(round.Answer) != 0 {
		t.Fatalf("price mismatch: %s", price)
	}
}

func TestChainlinkMetadata(t *testing.T) {
	reader, err := NewChainlink(newFakeCaller(t), common.HexToAddress("0x1"), ChainlinkConfig{}, nil)
	if err != nil {
		t.Fatalf("new chainlink: %v", err)
	}

	decimals, err := reader.Decimals(context.Background())
	if err != nil {
		t.Fatalf("decimals: %v", err)
	}
	if decimals != 8 {
		t.Fatalf("decimals mismatch: %d", decimals)
	}

	description, err := reader.Description(context.Background())
	if err != nil {
		t.Fatalf("description: %v", err)
	}
	if description != "ETH / USD" {
		t.Fatalf("description mismatch: %q", description)
	}
}

func TestChainlinkRetriesTransportErrors(t *testing.T) {
	caller := newFakeCaller(t)
	caller.failures = 2

	reader, err := NewChainlink(caller, common.HexToAddress("0x1"), ChainlinkConfig{
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("new chainlink: %v", err)
	}

	if _, err := reader.LatestRoundData(context.Background()); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if caller.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", caller.calls)
	}
}

func TestChainlinkGivesUpAfterMaxRetries(t *testing.T) {
	caller := newFakeCaller(t)
	caller.failures = 5

	reader, err := NewChainlink(caller, common.HexToAddress("0x1"), ChainlinkConfig{
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("new chainlink: %v", err)
	}

	_, err = PriceFeedData(context.Background(), reader)
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Is(err, ErrInvalidPriceFeedResponse) {
		t.Fatalf("transport failure reported as invalid response")
	}
	if caller.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", caller.calls)
	}
}

func TestChainlinkDoesNotRetryReverts(t *testing.T) {
	caller := newFakeCaller(t)
	caller.failWith = revertError{}

	reader, err := NewChainlink(caller, common.HexToAddress("0x1"), ChainlinkConfig{
		MaxRetries:   5,
		RetryBackoff: time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("new chainlink: %v", err)
	}

	_, err = PriceFeedData(context.Background(), reader)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("revert should surface as unavailable, got %v", err)
	}
	var reverted revertError
	if !errors.As(err, &reverted) {
		t.Fatalf("revert error lost: %v", err)
	}
	if caller.calls != 1 {
		t.Fatalf("expected 1 call, got %d", caller.calls)
	}
}

func TestNewChainlinkRequiresCaller(t *testing.T) {
	if _, err := NewChainlink(nil, common.HexToAddress("0x1"), ChainlinkConfig{}, nil); err == nil {
		t.Fatalf("expected error for nil caller")
	}
}
