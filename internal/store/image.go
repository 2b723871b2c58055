package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrImageNotFound is returned when a requested image does not exist.
var ErrImageNotFound = errors.New("image not found")

// Image is one carousel image.
type Image struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageRepository provides CRUD operations for carousel images.
type ImageRepository struct {
	db *sql.DB
}

// Images returns the image repository for this store.
func (s *Store) Images() *ImageRepository {
	return &ImageRepository{db: s.db}
}

// Create inserts a new image. A zero Position appends it after the
// current last image.
func (r *ImageRepository) Create(img *Image) error {
	if img.ID == "" || img.URL == "" {
		return errors.New("image id and url are required")
	}
	img.CreatedAt = time.Now()

	if img.Position == 0 {
		var last sql.NullInt64
		if err := r.db.QueryRow(`SELECT MAX(position) FROM images`).Scan(&last); err != nil {
			return err
		}
		img.Position = int(last.Int64) + 1
	}

	_, err := r.db.Exec(
		`INSERT INTO images (id, url, title, position, created_at) VALUES (?, ?, ?, ?, ?)`,
		img.ID, img.URL, img.Title, img.Position, img.CreatedAt,
	)
	return err
}

// GetByID retrieves an image by its ID.
func (r *ImageRepository) GetByID(id string) (*Image, error) {
	img := &Image{}
	err := r.db.QueryRow(
		`SELECT id, url, title, position, created_at FROM images WHERE id = ?`,
		id,
	).Scan(&img.ID, &img.URL, &img.Title, &img.Position, &img.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrImageNotFound
		}
		return nil, err
	}
	return img, nil
}

// List returns all images in display order.
func (r *ImageRepository) List() ([]*Image, error) {
	rows, err := r.db.Query(
		`SELECT id, url, title, position, created_at
		 FROM images ORDER BY position, created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*Image
	for rows.Next() {
		img := &Image{}
		if err := rows.Scan(&img.ID, &img.URL, &img.Title, &img.Position, &img.CreatedAt); err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return images, nil
}

// Delete removes an image by its ID.
func (r *ImageRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrImageNotFound
	}
	return nil
}

// Count returns the number of images.
func (r *ImageRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM images`).Scan(&n)
	return n, err
}

// Seed fills an empty catalogue with n bundled images img-0..img-(n-1)
// pointing at /images/1.jpg../images/n.jpg. It reports how many images
// were inserted; a non-empty catalogue is left alone.
func (r *ImageRepository) Seed(n int) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM images`).Scan(&existing); err != nil {
		return 0, err
	}
	if existing > 0 || n <= 0 {
		return 0, nil
	}

	stmt, err := tx.Prepare(`INSERT INTO images (id, url, position, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now()
	for i := 0; i < n; i++ {
		if _, err := stmt.Exec(fmt.Sprintf("img-%d", i), fmt.Sprintf("/images/%d.jpg", i+1), i+1, now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}
