package service

import (
	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/memberberries/internal/db"
	"github.com/Rogue-Bear-Innovations/memberberries/internal/realtime"
)

var (
	ErrLoginUserNotFound         = errors.New("user not found")
	ErrLoginPasswordDoesNotMatch = errors.New("password does not match")
	ErrBookmarkNotFound          = errors.New("bookmark not found")
)

type (
	General struct {
		db     *gorm.DB
		hub    *realtime.Hub
		logger *zap.SugaredLogger
	}

	BookmarkFields struct {
		Title    *string
		URL      *string
		Category *string
	}
)

func NewGeneral(db *gorm.DB, hub *realtime.Hub, l *zap.SugaredLogger) *General {
	return &General{
		db:     db,
		hub:    hub,
		logger: l,
	}
}

func (s *General) Register(email, pass string) (string, error) {
	hash, err := s.bcryptGen(pass)
	if err != nil {
		return "", errors.Wrap(err, "bcryptGen")
	}
	token := uuid.New().String()
	res := s.db.Create(&db.User{
		Email:    email,
		Password: hash,
		Token:    token,
	})
	if res.Error != nil {
		return "", res.Error
	}
	return token, nil
}

func (s *General) Login(email, pass string) (string, error) {
	user := db.User{}
	res := s.db.Where("email = ?", email).First(&user)
	if res.Error != nil {
		if res.Error == gorm.ErrRecordNotFound {
			return "", ErrLoginUserNotFound
		}
		return "", res.Error
	}

	if err := s.bcryptCheck(user.Password, pass); err != nil {
		return "", ErrLoginPasswordDoesNotMatch
	}

	token := uuid.New().String()
	res = s.db.Model(&user).Update("token", token)
	if res.Error != nil {
		return "", errors.Wrap(res.Error, "update token")
	}

	return token, nil
}

func (s *General) UserByToken(token string) (*db.User, error) {
	user := db.User{}
	res := s.db.Where("token = ?", token).First(&user)
	if res.Error != nil {
		return nil, res.Error
	}
	return &user, nil
}

// BookmarkList returns the full bookmark set of the user, newest first.
// The set is assumed small enough that pagination is not worth having.
func (s *General) BookmarkList(user *db.User) ([]db.Bookmark, error) {
	sql, args, err := squirrel.
		Select("id", "title", "url", "category", "user_id", "created_at").
		From("bookmarks").
		Where(squirrel.Eq{"user_id": user.ID}).
		OrderBy("created_at DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	bookmarks := make([]db.Bookmark, 0)
	res := s.db.Raw(sql, args...).Scan(&bookmarks)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan")
	}

	return bookmarks, nil
}

func (s *General) BookmarkCreate(user *db.User, title, url string, category *string) (*db.Bookmark, error) {
	model := db.Bookmark{
		Title:    title,
		URL:      url,
		Category: category,
		UserID:   user.ID,
	}

	res := s.db.Create(&model)
	if res.Error != nil {
		return nil, res.Error
	}

	s.publish(user.ID, realtime.EventInsert, &model)
	return &model, nil
}

func (s *General) BookmarkUpdate(user *db.User, bookmarkID string, fields BookmarkFields) (*db.Bookmark, error) {
	model := db.Bookmark{}
	res := s.db.Where("id = ? AND user_id = ?", bookmarkID, user.ID).First(&model)
	if res.Error != nil {
		if res.Error == gorm.ErrRecordNotFound {
			return nil, ErrBookmarkNotFound
		}
		return nil, errors.Wrap(res.Error, "get model")
	}

	if fields.Title != nil {
		model.Title = *fields.Title
	}
	if fields.URL != nil {
		model.URL = *fields.URL
	}
	if fields.Category != nil {
		model.Category = fields.Category
	}

	res = s.db.Save(&model)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "update model")
	}

	s.publish(user.ID, realtime.EventUpdate, &model)
	return &model, nil
}

func (s *General) BookmarkDelete(user *db.User, bookmarkID string) error {
	model := db.Bookmark{}
	res := s.db.Where("id = ? AND user_id = ?", bookmarkID, user.ID).First(&model)
	if res.Error != nil {
		if res.Error == gorm.ErrRecordNotFound {
			return ErrBookmarkNotFound
		}
		return errors.Wrap(res.Error, "get model")
	}

	res = s.db.Delete(&db.Bookmark{}, "id = ? AND user_id = ?", bookmarkID, user.ID)
	if res.Error != nil {
		return res.Error
	}

	s.publish(user.ID, realtime.EventDelete, &model)
	return nil
}

// BookmarkDeleteBatch removes the id set in one statement and publishes
// a delete event per removed row.
func (s *General) BookmarkDeleteBatch(user *db.User, bookmarkIDs []string) error {
	if len(bookmarkIDs) == 0 {
		return nil
	}

	models := make([]db.Bookmark, 0)
	res := s.db.Where("id IN ? AND user_id = ?", bookmarkIDs, user.ID).Find(&models)
	if res.Error != nil {
		return errors.Wrap(res.Error, "get models")
	}

	sql, args, err := squirrel.
		Delete("bookmarks").
		Where(squirrel.Eq{"id": bookmarkIDs, "user_id": user.ID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build sql")
	}

	res = s.db.Exec(sql, args...)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete batch")
	}

	for i := range models {
		s.publish(user.ID, realtime.EventDelete, &models[i])
	}
	return nil
}

func (s *General) publish(userID string, t realtime.EventType, model *db.Bookmark) {
	s.hub.Publish(userID, realtime.Event{
		Type: t,
		Bookmark: realtime.Row{
			ID:        model.ID,
			Title:     model.Title,
			URL:       model.URL,
			Category:  model.Category,
			UserID:    model.UserID,
			CreatedAt: model.CreatedAt,
		},
	})
}

func (s *General) bcryptGen(pass string) (string, error) {
	passwordHashB, err := bcrypt.GenerateFromPassword([]byte(pass), 14)
	if err != nil {
		return "", errors.Wrap(err, "generate password hash")
	}
	return string(passwordHashB), nil
}

func (s *General) bcryptCheck(hash, pass string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass))
}
