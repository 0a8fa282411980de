package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/constants"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// BalanceRefreshEvent asks balance consumers to re-read one chain.
type BalanceRefreshEvent struct {
	ChainID     int64     `json:"chain_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// PubSubManager publishes settlement events and balance refresh requests.
type PubSubManager struct {
	client redis.UniversalClient
	logger *logrus.Logger
}

func NewPubSubManager(client redis.UniversalClient, logger *logrus.Logger) *PubSubManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &PubSubManager{client: client, logger: logger}
}

// Refresh implements storage.BalanceRefresher.
func (p *PubSubManager) Refresh(ctx context.Context, chainID int64) error {
	data, err := json.Marshal(BalanceRefreshEvent{ChainID: chainID, RequestedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, constants.BalancesChannel(chainID), data).Err(); err != nil {
		return fmt.Errorf("publish balance refresh: %w", err)
	}
	return nil
}

// OnSettled implements storage.OutcomeObserver. The record goes to the
// shared status channel and to a per-transaction channel.
func (p *PubSubManager) OnSettled(ctx context.Context, rec *models.SwapRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	channels := []string{
		constants.PubSubChannelSwapStatus,
		fmt.Sprintf("%s:%s", constants.PubSubChannelSwapStatus, rec.TxID),
	}

	pipe := p.client.Pipeline()
	for _, channel := range channels {
		pipe.Publish(ctx, channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish settlement: %w", err)
	}
	return nil
}

// SubscribeSettlements blocks delivering settled records until ctx ends.
// An empty txID subscribes to every swap.
func (p *PubSubManager) SubscribeSettlements(ctx context.Context, txID string, handler func(*models.SwapRecord)) error {
	channel := constants.PubSubChannelSwapStatus
	if txID != "" {
		channel = fmt.Sprintf("%s:%s", channel, txID)
	}
	pubsub := p.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	p.logger.WithField("channel", channel).Info("subscribed to settlement events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var rec models.SwapRecord
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				p.logger.WithError(err).Warn("dropping malformed settlement event")
				continue
			}
			handler(&rec)
		}
	}
}

var (
	_ storage.BalanceRefresher = (*PubSubManager)(nil)
	_ storage.OutcomeObserver  = (*PubSubManager)(nil)
)
