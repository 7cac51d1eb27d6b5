package sqlite

const schema = `
-- Companies (root tenant)
CREATE TABLE IF NOT EXISTS companies (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    timezone TEXT NOT NULL DEFAULT 'UTC',
    chat_tool TEXT NOT NULL,
    report_channel TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Sections: one binding to an external provider board per row
CREATE TABLE IF NOT EXISTS sections (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    provider_key TEXT NOT NULL,
    board_ref TEXT NOT NULL,
    property_usage TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (company_id) REFERENCES companies(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sections_company ON sections(company_id);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    chat_identity TEXT NOT NULL DEFAULT '',
    provider_ids TEXT NOT NULL DEFAULT '{}',
    FOREIGN KEY (company_id) REFERENCES companies(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_users_company ON users(company_id);

-- Canonical todos imported from providers
CREATE TABLE IF NOT EXISTS todos (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL,
    section_id TEXT NOT NULL DEFAULT '',
    provider_key TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    provider_url TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL CHECK(length(title) <= 500),
    assignees TEXT NOT NULL DEFAULT '[]',
    deadline DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    first_assigned_at DATETIME,
    first_ddl_set_at DATETIME,
    delayed_count INTEGER NOT NULL DEFAULT 0 CHECK(delayed_count >= 0),
    reminder_count INTEGER NOT NULL DEFAULT 0 CHECK(reminder_count >= 0),
    is_closed INTEGER NOT NULL DEFAULT 0,
    closed_at DATETIME,
    recovery_pending INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (company_id) REFERENCES companies(id) ON DELETE CASCADE,
    UNIQUE(company_id, provider_key, provider_id),
    CHECK (
        (is_closed = 1 AND closed_at IS NOT NULL) OR
        (is_closed = 0 AND closed_at IS NULL)
    )
);

CREATE INDEX IF NOT EXISTS idx_todos_company ON todos(company_id);
CREATE INDEX IF NOT EXISTS idx_todos_company_open ON todos(company_id, is_closed);
CREATE INDEX IF NOT EXISTS idx_todos_deadline ON todos(deadline);

-- Append-only history of observed external changes. Never updated, never deleted.
CREATE TABLE IF NOT EXISTS todo_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    todo_id TEXT NOT NULL,
    updated_at DATETIME NOT NULL,
    editor TEXT NOT NULL DEFAULT '',
    recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (todo_id) REFERENCES todos(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_history_todo ON todo_history(todo_id, updated_at);

-- Reminder configuration
CREATE TABLE IF NOT EXISTS remind_configs (
    company_id TEXT PRIMARY KEY,
    before_days TEXT NOT NULL DEFAULT '[]',
    report_after_recovery INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (company_id) REFERENCES companies(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS remind_timings (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL,
    at TEXT NOT NULL,
    interval_min INTEGER NOT NULL CHECK(interval_min > 0),
    FOREIGN KEY (company_id) REFERENCES companies(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_remind_timings_company ON remind_timings(company_id);

-- Prospect (progress report) cadence; purpose is 'prompt' or 'report'
CREATE TABLE IF NOT EXISTS prospect_timings (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL,
    at TEXT NOT NULL,
    interval_min INTEGER NOT NULL CHECK(interval_min > 0),
    purpose TEXT NOT NULL CHECK(purpose IN ('prompt', 'report')),
    FOREIGN KEY (company_id) REFERENCES companies(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_prospect_timings_company ON prospect_timings(company_id);

-- Five ordered status levels per company
CREATE TABLE IF NOT EXISTS status_configs (
    company_id TEXT NOT NULL,
    level INTEGER NOT NULL CHECK(level >= 1 AND level <= 5),
    label TEXT NOT NULL,
    PRIMARY KEY (company_id, level),
    FOREIGN KEY (company_id) REFERENCES companies(id) ON DELETE CASCADE
);

-- Dispatch idempotency rows. The UNIQUE key tuple is the transactional
-- boundary that makes delivery at-most-once across racing cycles. Rows are
-- never deleted.
CREATE TABLE IF NOT EXISTS remind_user_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    company_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    todo_id TEXT NOT NULL DEFAULT '',
    timing_id TEXT NOT NULL,
    day TEXT NOT NULL,
    offset_days INTEGER NOT NULL DEFAULT 0,
    kind TEXT NOT NULL DEFAULT 'reminder',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, todo_id, timing_id, day, offset_days, kind)
);

CREATE INDEX IF NOT EXISTS idx_jobs_company_day ON remind_user_jobs(company_id, day);

-- Sent chat messages with engagement fields
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL,
    todo_id TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    token TEXT NOT NULL UNIQUE,
    body TEXT NOT NULL DEFAULT '',
    sent_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    url_clicked_at DATETIME,
    is_replied INTEGER NOT NULL DEFAULT 0,
    failed_at DATETIME,
    fail_reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_messages_todo ON messages(todo_id);
CREATE INDEX IF NOT EXISTS idx_messages_company_sent ON messages(company_id, sent_at);

CREATE TABLE IF NOT EXISTS prospect_responses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    company_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    level INTEGER NOT NULL CHECK(level >= 1 AND level <= 5),
    text TEXT NOT NULL DEFAULT '',
    responded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (company_id) REFERENCES companies(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_prospect_responses_company ON prospect_responses(company_id, responded_at);
`
