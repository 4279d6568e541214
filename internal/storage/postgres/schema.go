// Package postgres provides a pgvector implementation of storage.VectorIndex.
package postgres

// Schema creates the vector table. The vector column is untyped so one table
// can hold namespaces of different dimensions; queries compare only vectors
// of the query's dimension.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS vector_items (
    namespace  TEXT NOT NULL,
    id         TEXT NOT NULL,
    metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
    embedding  vector NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (namespace, id)
);

CREATE INDEX IF NOT EXISTS idx_vector_items_metadata ON vector_items USING GIN (metadata);
`
