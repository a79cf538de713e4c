package push

import (
	"context"
	"errors"
	"log"
)

// reasonUnknownSubscription は存在しない購読IDへの配信要求を表すReason値。
const reasonUnknownSubscription = "unknown subscription"

// Orchestrator は配信結果に基づいてストアを変更する唯一のコンポーネント。
// 購読の状態遷移は Active → (Gone観測) → Evicted のみであり、
// DeliveredとTransientFailureではActiveのまま変化しない。
type Orchestrator struct {
	// store は購読レコードストア。
	store *Store
	// dispatcher はリレーへの配信実装。
	dispatcher Dispatcher
}

// NewOrchestrator は新しい配信オーケストレーターを生成する。
func NewOrchestrator(store *Store, dispatcher Dispatcher) *Orchestrator {
	return &Orchestrator{store: store, dispatcher: dispatcher}
}

// Deliver は指定IDの購読へ1件のメッセージを配信する。
// 購読が存在しない場合はリレーへ接続せずRejectedを返す。
// リレーがGoneを報告した場合はレコードを削除する(エビクション)。
// TransientFailureでの再試行は呼び出し側の責務であり、この層では行わない。
func (o *Orchestrator) Deliver(ctx context.Context, id, title, body string) Outcome {
	sub, err := o.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Outcome{Result: Rejected, Reason: reasonUnknownSubscription}
	}
	if err != nil {
		return Outcome{Result: TransientFailure, Reason: "購読レコードの取得に失敗しました"}
	}

	outcome := o.dispatcher.Send(ctx, sub, &DeliveryRequest{
		SubscriptionID: id,
		Title:          title,
		Body:           body,
	})

	if outcome.Result == Gone {
		// エビクションはベストエフォート。削除に失敗しても配信結果は変えない。
		if err := o.store.Remove(ctx, id); err != nil {
			log.Printf("[Push] 無効な購読 %s の削除に失敗: %v", id, err)
		} else {
			log.Printf("[Push] 無効な購読 %s を削除しました", id)
		}
	}

	return outcome
}
