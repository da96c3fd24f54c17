package database

var schema = []string{
	`CREATE TABLE IF NOT EXISTS usage_ledger (
    day DATE NOT NULL,
    user_id VARCHAR(64) NOT NULL,
    count INT UNSIGNED NOT NULL DEFAULT 0,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    PRIMARY KEY (day, user_id)
)`,
	`CREATE TABLE IF NOT EXISTS generation_logs (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    run_id CHAR(36) NOT NULL,
    user_id VARCHAR(64) NOT NULL,
    shot_id VARCHAR(16) NOT NULL,
    status VARCHAR(16) NOT NULL,
    prompt TEXT NOT NULL,
    negative_prompt TEXT NOT NULL,
    applied_rules VARCHAR(512) NOT NULL DEFAULT '',
    own_credential BOOLEAN NOT NULL DEFAULT FALSE,
    error TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_generation_logs_user (user_id, created_at),
    KEY idx_generation_logs_run (run_id)
)`,
}
