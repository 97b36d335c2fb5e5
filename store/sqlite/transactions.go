package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/campus/rewards-engine/loyalty"
)

// =============================================================================
// TRANSACTION STORE
// =============================================================================

const txSelect = `
	SELECT t.id, t.type, t.amount, t.user_id, t.created_by_id, t.remark,
	       t.event_id, t.related_tx_id, t.suspicious, t.processed, t.processed_by_id,
	       t.created_at, u.utorid, c.utorid, pd.spent_cents, pd.comment
	FROM transactions t
	JOIN users u ON u.id = t.user_id
	JOIN users c ON c.id = t.created_by_id
	LEFT JOIN purchase_details pd ON pd.transaction_id = t.id`

const txFrom = `transactions t
	JOIN users u ON u.id = t.user_id
	JOIN users c ON c.id = t.created_by_id`

// AppendTransaction inserts the row, its purchase detail and one usage row
// per applied promotion.
func (q *queries) AppendTransaction(ctx context.Context, tx *loyalty.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO transactions
		(type, amount, user_id, created_by_id, remark, event_id, related_tx_id,
		 suspicious, processed, processed_by_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(tx.Type), tx.Amount, tx.UserID, tx.CreatedByID, tx.Remark,
		nullInt(tx.EventRef), nullInt(tx.RelatedTransactionRef),
		tx.Suspicious, tx.Processed, nullInt(tx.ProcessedByID),
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	if tx.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	if tx.Purchase == nil {
		return nil
	}
	tx.Purchase.TransactionID = tx.ID
	if _, err := q.q.ExecContext(ctx,
		"INSERT INTO purchase_details (transaction_id, spent_cents, comment) VALUES (?, ?, ?)",
		tx.ID, tx.Purchase.SpentCents, tx.Purchase.Comment,
	); err != nil {
		return fmt.Errorf("failed to insert purchase detail: %w", err)
	}
	for i, pid := range tx.Purchase.AppliedPromotionIDs {
		if _, err := q.q.ExecContext(ctx,
			"INSERT INTO promotion_usages (user_id, promotion_id, transaction_id, position) VALUES (?, ?, ?, ?)",
			tx.UserID, pid, tx.ID, i,
		); err != nil {
			return fmt.Errorf("failed to record promotion usage: %w", err)
		}
	}
	return nil
}

func (q *queries) GetTransaction(ctx context.Context, id int64) (*loyalty.Transaction, error) {
	txs, err := q.queryTransactions(ctx, txSelect+" WHERE t.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[0], nil
}

func (q *queries) ListTransactions(ctx context.Context, f loyalty.TransactionFilter) ([]loyalty.Transaction, int, error) {
	w := &where{}
	if f.UserID != nil {
		w.add("t.user_id = ?", *f.UserID)
	}
	if f.Name != "" {
		w.add("(u.utorid LIKE ? OR u.name LIKE ?)", like(f.Name), like(f.Name))
	}
	if f.CreatedBy != "" {
		w.add("(c.utorid LIKE ? OR c.name LIKE ?)", like(f.CreatedBy), like(f.CreatedBy))
	}
	if f.Suspicious != nil {
		w.add("t.suspicious = ?", *f.Suspicious)
	}
	if f.Type != nil {
		w.add("t.type = ?", string(*f.Type))
	}
	if f.RelatedID != nil {
		w.add("COALESCE(t.event_id, t.related_tx_id) = ?", *f.RelatedID)
	}
	if f.PromotionID != nil {
		w.add("EXISTS (SELECT 1 FROM promotion_usages pu WHERE pu.transaction_id = t.id AND pu.promotion_id = ?)", *f.PromotionID)
	}
	if f.Amount != nil {
		switch f.Operator {
		case loyalty.AmountGTE:
			w.add("t.amount >= ?", *f.Amount)
		case loyalty.AmountLTE:
			w.add("t.amount <= ?", *f.Amount)
		default:
			w.add("t.amount = ?", *f.Amount)
		}
	}

	total, err := q.count(ctx, txFrom, w)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	page := f.Page.Normalize()
	txs, err := q.queryTransactions(ctx,
		txSelect+w.String()+" ORDER BY t.id DESC LIMIT ? OFFSET ?",
		append(w.args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (q *queries) UserTransactions(ctx context.Context, userID int64) ([]loyalty.Transaction, error) {
	return q.queryTransactions(ctx, txSelect+" WHERE t.user_id = ? ORDER BY t.id", userID)
}

func (q *queries) SetSuspicious(ctx context.Context, id int64, suspicious bool) error {
	res, err := q.q.ExecContext(ctx, "UPDATE transactions SET suspicious = ? WHERE id = ?", suspicious, id)
	if err != nil {
		return fmt.Errorf("failed to flag transaction: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return loyalty.ErrTransactionNotFound
	}
	return nil
}

// MarkProcessed only flips an unprocessed row, so a second caller sees
// ErrAlreadyProcessed even without a prior read.
func (q *queries) MarkProcessed(ctx context.Context, id int64, processedBy int64) error {
	res, err := q.q.ExecContext(ctx,
		"UPDATE transactions SET processed = 1, processed_by_id = ? WHERE id = ? AND processed = 0",
		processedBy, id)
	if err != nil {
		return fmt.Errorf("failed to process transaction: %w", err)
	}
	ok, err := affected(res)
	if err != nil || ok {
		return err
	}

	var processed bool
	err = q.q.QueryRowContext(ctx, "SELECT processed FROM transactions WHERE id = ?", id).Scan(&processed)
	if errors.Is(err, sql.ErrNoRows) {
		return loyalty.ErrTransactionNotFound
	}
	if err != nil {
		return err
	}
	return loyalty.ErrAlreadyProcessed
}

func (q *queries) HasUsedPromotion(ctx context.Context, userID, promotionID int64) (bool, error) {
	var count int
	err := q.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM promotion_usages WHERE user_id = ? AND promotion_id = ?",
		userID, promotionID,
	).Scan(&count)
	return count > 0, err
}

func (q *queries) queryTransactions(ctx context.Context, query string, args ...any) ([]loyalty.Transaction, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	var transactions []loyalty.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range transactions {
		if transactions[i].Purchase == nil {
			continue
		}
		ids, err := q.appliedPromotions(ctx, transactions[i].ID)
		if err != nil {
			return nil, err
		}
		transactions[i].Purchase.AppliedPromotionIDs = ids
	}
	return transactions, nil
}

func (q *queries) appliedPromotions(ctx context.Context, txID int64) ([]int64, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT promotion_id FROM promotion_usages WHERE transaction_id = ? ORDER BY position", txID)
	if err != nil {
		return nil, fmt.Errorf("failed to query promotion usages: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanTransaction(rows *sql.Rows) (loyalty.Transaction, error) {
	var (
		tx          loyalty.Transaction
		typ         string
		eventID     sql.NullInt64
		relatedID   sql.NullInt64
		processedBy sql.NullInt64
		createdAt   string
		spentCents  sql.NullInt64
		comment     sql.NullString
	)

	err := rows.Scan(
		&tx.ID, &typ, &tx.Amount, &tx.UserID, &tx.CreatedByID, &tx.Remark,
		&eventID, &relatedID, &tx.Suspicious, &tx.Processed, &processedBy,
		&createdAt, &tx.Utorid, &tx.CreatedByUtorid, &spentCents, &comment,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Type = loyalty.TransactionType(typ)
	tx.EventRef = intPtr(eventID)
	tx.RelatedTransactionRef = intPtr(relatedID)
	tx.ProcessedByID = intPtr(processedBy)
	tx.CreatedAt = parseTime(createdAt)
	if spentCents.Valid {
		tx.Purchase = &loyalty.PurchaseDetail{
			TransactionID: tx.ID,
			SpentCents:    spentCents.Int64,
			Comment:       comment.String,
		}
	}
	return tx, nil
}
