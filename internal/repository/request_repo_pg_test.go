package repository

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
)

func TestNewRequestRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewRequestRepository(pool)
	assert.NotNil(t, repo)
}

func TestNewBookingRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewBookingRepository(pool)
	assert.NotNil(t, repo)
}

func TestNewVendorRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewVendorRepository(pool)
	assert.NotNil(t, repo)
}
