package trader

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/zakhard90/chainlink-price-feed/internal/model"
)

const traderABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "oldPrice", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "newPrice", "type": "uint256"}
    ],
    "name": "TokenPriceUpdated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "buyer", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "ethAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "tokenAmount", "type": "uint256"}
    ],
    "name": "TokensPurchased",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "WithdrawalMade",
    "type": "event"
  },
  {"inputs": [], "name": "InvalidTokenAddress", "type": "error"},
  {"inputs": [], "name": "InvalidFeedAddress", "type": "error"},
  {"inputs": [], "name": "InvalidPrice", "type": "error"},
  {"inputs": [], "name": "InvalidPriceFeedResponse", "type": "error"},
  {"inputs": [], "name": "ValueExceedesMaxPurchase", "type": "error"},
  {"inputs": [], "name": "Unauthorized", "type": "error"},
  {"inputs": [], "name": "InvalidPaymentAmount", "type": "error"},
  {"inputs": [], "name": "ReentrantCall", "type": "error"},
  {"inputs": [], "name": "ArithmeticOverflow", "type": "error"}
]`

var (
	traderABI     abi.ABI
	traderABIOnce sync.Once
	traderABIErr  error
)

// ABI returns the parsed exchange ABI (events and custom errors).
func ABI() (abi.ABI, error) {
	traderABIOnce.Do(func() {
		traderABI, traderABIErr = abi.JSON(strings.NewReader(traderABIJSON))
	})
	return traderABI, traderABIErr
}

// ErrorSelector returns the 4-byte custom error selector for err, or nil if
// err is not part of the exchange error taxonomy.
func ErrorSelector(err error) []byte {
	name := ErrorName(err)
	if name == "" {
		return nil
	}
	parsed, abiErr := ABI()
	if abiErr != nil {
		return nil
	}
	customErr, ok := parsed.Errors[name]
	if !ok {
		return nil
	}
	return customErr.ID.Bytes()[:4]
}

// EncodeEvent renders an envelope as an EVM log.
func EncodeEvent(env Envelope) (types.Log, error) {
	parsed, err := ABI()
	if err != nil {
		return types.Log{}, fmt.Errorf("parse trader abi: %w", err)
	}
	if env.Event == nil {
		return types.Log{}, fmt.Errorf("event is nil")
	}
	event, ok := parsed.Events[env.Event.EventName()]
	if !ok {
		return types.Log{}, fmt.Errorf("unsupported event: %s", env.Event.EventName())
	}

	topics := []common.Hash{event.ID}
	var data []byte
	switch e := env.Event.(type) {
	case model.TokenPriceUpdated:
		data, err = event.Inputs.NonIndexed().Pack(e.OldPrice, e.NewPrice)
	case model.TokensPurchased:
		topics = append(topics, common.BytesToHash(e.Buyer.Bytes()))
		data, err = event.Inputs.NonIndexed().Pack(e.EthAmount, e.TokenAmount)
	case model.WithdrawalMade:
		topics = append(topics, common.BytesToHash(e.Owner.Bytes()))
		data, err = event.Inputs.NonIndexed().Pack(e.Amount)
	default:
		return types.Log{}, fmt.Errorf("unsupported event type %T", env.Event)
	}
	if err != nil {
		return types.Log{}, fmt.Errorf("pack %s: %w", event.Name, err)
	}

	return types.Log{
		Address: env.Emitter,
		Topics:  topics,
		Data:    data,
	}, nil
}

// DecodeEvent parses an EVM log emitted by the exchange.
func DecodeEvent(log types.Log) (model.Event, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	parsed, err := ABI()
	if err != nil {
		return nil, fmt.Errorf("parse trader abi: %w", err)
	}
	event, err := parsed.EventByID(log.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	ints := make([]*big.Int, 0, len(values))
	for _, value := range values {
		v, ok := value.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected type %T", event.Name, value)
		}
		ints = append(ints, v)
	}

	switch event.Name {
	case model.EventTokenPriceUpdated:
		if len(ints) != 2 {
			return nil, fmt.Errorf("%s: field count %d", event.Name, len(ints))
		}
		return model.TokenPriceUpdated{OldPrice: ints[0], NewPrice: ints[1]}, nil
	case model.EventTokensPurchased:
		if len(ints) != 2 || len(log.Topics) != 2 {
			return nil, fmt.Errorf("%s: malformed log", event.Name)
		}
		return model.TokensPurchased{
			Buyer:       common.BytesToAddress(log.Topics[1].Bytes()),
			EthAmount:   ints[0],
			TokenAmount: ints[1],
		}, nil
	case model.EventWithdrawalMade:
		if len(ints) != 1 || len(log.Topics) != 2 {
			return nil, fmt.Errorf("%s: malformed log", event.Name)
		}
		return model.WithdrawalMade{
			Owner:  common.BytesToAddress(log.Topics[1].Bytes()),
			Amount: ints[0],
		}, nil
	default:
		return nil, fmt.Errorf("unsupported event name: %s", event.Name)
	}
}

// Record converts an envelope into its journal form.
func Record(env Envelope) (model.EventRecord, error) {
	log, err := EncodeEvent(env)
	if err != nil {
		return model.EventRecord{}, err
	}
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}
	return model.EventRecord{
		Sequence:  env.Sequence,
		Name:      env.Event.EventName(),
		Address:   log.Address.Hex(),
		Topics:    topics,
		Data:      hexutil.Encode(log.Data),
		Fields:    Fields(env.Event),
		Timestamp: env.Time.UTC().Format(time.RFC3339Nano),
	}, nil
}

// DecodeRecord parses a journal record back into its event.
func DecodeRecord(rec model.EventRecord) (model.Event, error) {
	topics := make([]common.Hash, 0, len(rec.Topics))
	for _, topic := range rec.Topics {
		raw, err := hexutil.Decode(topic)
		if err != nil || len(raw) != common.HashLength {
			return nil, fmt.Errorf("invalid topic: %s", topic)
		}
		topics = append(topics, common.BytesToHash(raw))
	}
	data, err := hexutil.Decode(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	return DecodeEvent(types.Log{
		Address: common.HexToAddress(rec.Address),
		Topics:  topics,
		Data:    data,
	})
}

// Fields renders event arguments as strings keyed by their ABI names.
func Fields(ev model.Event) map[string]string {
	switch e := ev.(type) {
	case model.TokenPriceUpdated:
		return map[string]string{"oldPrice": e.OldPrice.String(), "newPrice": e.NewPrice.String()}
	case model.TokensPurchased:
		return map[string]string{
			"buyer":       e.Buyer.Hex(),
			"ethAmount":   e.EthAmount.String(),
			"tokenAmount": e.TokenAmount.String(),
		}
	case model.WithdrawalMade:
		return map[string]string{"owner": e.Owner.Hex(), "amount": e.Amount.String()}
	default:
		return map[string]string{}
	}
}
