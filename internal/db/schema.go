package db

import "fmt"

// schemaSQL builds the schema statements. The HNSW index dimension must be
// a literal, so the statement is rendered per configured embedding width.
func schemaSQL(dimension int) string {
	return fmt.Sprintf(`
    -- ==========================================================================
    -- KNOWLEDGE BASE TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS kb SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON kb TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON kb TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON kb TYPE string DEFAULT "active";
    DEFINE FIELD IF NOT EXISTS source_type ON kb TYPE string;
    DEFINE FIELD IF NOT EXISTS source_config ON kb TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS profiles ON kb TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS priority ON kb TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS indexed ON kb TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS created_at ON kb TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS last_indexed_at ON kb TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS kb_name ON kb FIELDS name UNIQUE;
    DEFINE INDEX IF NOT EXISTS kb_status ON kb FIELDS status;

    -- ==========================================================================
    -- INGESTION JOB TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS ingest_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS kb_id ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS phase ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS progress ON ingest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS phase_progress ON ingest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS message ON ingest_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS error ON ingest_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS metrics ON ingest_job TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS phase_details ON ingest_job TYPE array<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS checkpoint ON ingest_job TYPE option<bytes>;
    DEFINE FIELD IF NOT EXISTS started_at ON ingest_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON ingest_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS ingest_job_kb ON ingest_job FIELDS kb_id;
    DEFINE INDEX IF NOT EXISTS ingest_job_status ON ingest_job FIELDS status;

    -- ==========================================================================
    -- CHUNK TABLE (embedded content)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS chunk SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS kb_id ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS doc_id ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS doc_title ON chunk TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS doc_url ON chunk TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS heading_path ON chunk TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS chunk_index ON chunk TYPE int;
    DEFINE FIELD IF NOT EXISTS content ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON chunk TYPE array<float>;
    -- TODO: Use set<string> when Go SDK supports CBOR tag 56 (v3.0 set type)
    DEFINE FIELD IF NOT EXISTS tags ON chunk TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS created_at ON chunk TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS chunk_kb ON chunk FIELDS kb_id;
    DEFINE INDEX IF NOT EXISTS chunk_doc ON chunk FIELDS kb_id, doc_id;
    DEFINE INDEX IF NOT EXISTS chunk_embedding ON chunk FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
    DEFINE ANALYZER IF NOT EXISTS chunk_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS chunk_content_ft ON chunk FIELDS content FULLTEXT ANALYZER chunk_analyzer BM25;
`, dimension)
}
