package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"modmail-bot/internal/ticket"
)

type ticketRow struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index;not null"`
	Position  int    `gorm:"not null"`
	ChannelID string `gorm:"uniqueIndex;not null"`
	ClosedBy  string
	ClosedAt  *time.Time
}

func (ticketRow) TableName() string { return "tickets" }

type entryRow struct {
	ID        uint   `gorm:"primaryKey"`
	TicketID  uint   `gorm:"index;not null"`
	Position  int    `gorm:"not null"`
	Author    string `gorm:"not null"`
	Content   string `gorm:"type:text"`
	Timestamp time.Time
}

func (entryRow) TableName() string { return "entries" }

type liveChannelRow struct {
	ChannelID string `gorm:"primaryKey"`
	UserID    string `gorm:"not null"`
}

func (liveChannelRow) TableName() string { return "live_channels" }

// SQL stores the snapshot in a SQLite database. Each Save rewrites all
// rows in a single transaction.
type SQL struct {
	db *gorm.DB
}

// OpenSQL opens (creating if needed) the SQLite database at path.
func OpenSQL(path string) (*SQL, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQL(db)
}

// NewSQL migrates the schema on db and returns a store over it.
func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&ticketRow{}, &entryRow{}, &liveChannelRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQL{db: db}, nil
}

// Close releases the underlying connection.
func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQL) Load(ctx context.Context) (ticket.Snapshot, error) {
	var tickets []ticketRow
	var entries []entryRow
	var live []liveChannelRow

	db := s.db.WithContext(ctx)
	if err := db.Order("user_id, position").Find(&tickets).Error; err != nil {
		return ticket.Snapshot{}, fmt.Errorf("load tickets: %w", err)
	}
	if err := db.Order("ticket_id, position").Find(&entries).Error; err != nil {
		return ticket.Snapshot{}, fmt.Errorf("load entries: %w", err)
	}
	if err := db.Find(&live).Error; err != nil {
		return ticket.Snapshot{}, fmt.Errorf("load live channels: %w", err)
	}

	byTicket := make(map[uint][]ticket.Entry, len(tickets))
	for _, e := range entries {
		byTicket[e.TicketID] = append(byTicket[e.TicketID], ticket.Entry{
			Author:    e.Author,
			Content:   e.Content,
			Timestamp: e.Timestamp,
		})
	}

	snap := ticket.EmptySnapshot()
	for _, row := range tickets {
		messages := byTicket[row.ID]
		if messages == nil {
			messages = []ticket.Entry{}
		}
		snap.UserTickets[row.UserID] = append(snap.UserTickets[row.UserID], ticket.Ticket{
			ChannelID: row.ChannelID,
			Messages:  messages,
			ClosedBy:  row.ClosedBy,
			ClosedAt:  row.ClosedAt,
		})
	}
	for _, row := range live {
		snap.ChannelToUser[row.ChannelID] = row.UserID
	}
	return snap, nil
}

func (s *SQL) Save(ctx context.Context, snap ticket.Snapshot) error {
	users := make([]string, 0, len(snap.UserTickets))
	for user := range snap.UserTickets {
		users = append(users, user)
	}
	sort.Strings(users)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"entries", "tickets", "live_channels"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		for _, user := range users {
			for pos, t := range snap.UserTickets[user] {
				row := ticketRow{
					UserID:    user,
					Position:  pos,
					ChannelID: t.ChannelID,
					ClosedBy:  t.ClosedBy,
					ClosedAt:  t.ClosedAt,
				}
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("insert ticket %s: %w", t.ChannelID, err)
				}
				if len(t.Messages) == 0 {
					continue
				}
				rows := make([]entryRow, 0, len(t.Messages))
				for i, e := range t.Messages {
					rows = append(rows, entryRow{
						TicketID:  row.ID,
						Position:  i,
						Author:    e.Author,
						Content:   e.Content,
						Timestamp: e.Timestamp,
					})
				}
				if err := tx.CreateInBatches(rows, 200).Error; err != nil {
					return fmt.Errorf("insert entries for %s: %w", t.ChannelID, err)
				}
			}
		}

		if len(snap.ChannelToUser) == 0 {
			return nil
		}
		live := make([]liveChannelRow, 0, len(snap.ChannelToUser))
		for channelID, user := range snap.ChannelToUser {
			live = append(live, liveChannelRow{ChannelID: channelID, UserID: user})
		}
		if err := tx.Create(&live).Error; err != nil {
			return fmt.Errorf("insert live channels: %w", err)
		}
		return nil
	})
}
