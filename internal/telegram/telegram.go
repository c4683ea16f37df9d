package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/sirupsen/logrus"
	tele "gopkg.in/telebot.v3"
)

// Telegram delivers booking and invoice notifications to team members
// who have a chat id on file.
type Telegram struct {
	log   *logrus.Entry
	bot   *tele.Bot
	users UserDirectory
}

type UserDirectory interface {
	GetUsers(ctx context.Context) ([]models.User, error)
}

func NewBot(token string) (*tele.Bot, error) {
	config := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(config)
	if err != nil {
		return nil, fmt.Errorf("new bot failed: %w", err)
	}
	return b, nil
}

func New(log *logrus.Logger, bot *tele.Bot, users UserDirectory) *Telegram {
	t := Telegram{
		log:   log.WithField("component", "telegram"),
		bot:   bot,
		users: users,
	}
	t.bot.Handle("/start", t.startHandler)
	return &t
}

func (t *Telegram) startHandler(ctx tele.Context) error {
	msg := fmt.Sprintf("Hi %s! Ask an admin to link chat id %d to your profile to receive schedule updates.",
		ctx.Sender().FirstName, ctx.Sender().ID)
	return ctx.Send(msg)
}

// Notify looks up the user's chat id and sends the message. Users without
// a linked chat are skipped silently; notification is best effort.
func (t *Telegram) Notify(ctx context.Context, message string, userID int) error {
	users, err := t.users.GetUsers(ctx)
	if err != nil {
		return fmt.Errorf("err resolving chat for user %d: %w", userID, err)
	}
	for _, u := range users {
		if u.ID != userID || u.ChatID == nil {
			continue
		}
		if _, err = t.bot.Send(&tele.User{ID: *u.ChatID}, message); err != nil {
			return fmt.Errorf("err sending telegram message to user %d: %w", userID, err)
		}
		return nil
	}
	t.log.Debugf("user %d has no linked chat, skipping notification", userID)
	return nil
}

func (t *Telegram) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		t.bot.Stop()
	}()
	t.log.Infof("Starting telegram bot as %v", t.bot.Me.Username)
	t.bot.Start()
}
