package db

import (
	"database/sql"

	"github.com/ad/go-telegram-screening/internal/models"
)

type UserRepository struct {
	queue *DBQueue
}

func NewUserRepository(queue *DBQueue) *UserRepository {
	return &UserRepository{queue: queue}
}

func (r *UserRepository) CreateOrUpdate(user *models.User) error {
	_, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		_, err := db.Exec(`
			INSERT INTO users (id, first_name, last_name, username, language_code)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				first_name = excluded.first_name,
				last_name = excluded.last_name,
				username = excluded.username,
				language_code = excluded.language_code
		`, user.ID, user.FirstName, user.LastName, user.Username, user.LanguageCode)
		return nil, err
	})
	return err
}

func (r *UserRepository) GetByID(id int64) (*models.User, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		row := db.QueryRow(`
			SELECT id, first_name, last_name, username, language_code, created_at
			FROM users WHERE id = ?
		`, id)

		var user models.User
		var firstName, lastName, username, lang sql.NullString
		if err := row.Scan(&user.ID, &firstName, &lastName, &username, &lang, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.FirstName = firstName.String
		user.LastName = lastName.String
		user.Username = username.String
		user.LanguageCode = lang.String
		return &user, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.User), nil
}

func (r *UserRepository) Count() (int, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
		return n, err
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}
