package storage

const schema = `
-- Insight bundles
CREATE TABLE IF NOT EXISTS insights (
    id TEXT PRIMARY KEY,
    generated_at DATETIME NOT NULL,
    stored_at DATETIME NOT NULL,
    confidence REAL NOT NULL DEFAULT 0,
    risk_count INTEGER NOT NULL DEFAULT 0,
    bundle TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_insights_stored_at ON insights(stored_at);

-- Learning outcomes with the engine status after the call
CREATE TABLE IF NOT EXISTS outcomes (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL,
    stored_at DATETIME NOT NULL,
    adaptation_level TEXT NOT NULL,
    degraded INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL,
    status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_stored_at ON outcomes(stored_at);
`
